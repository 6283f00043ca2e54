package carbon

import (
	"sync"

	"github.com/rs/zerolog"
)

var (
	logger   = zerolog.Nop()
	loggerMu sync.RWMutex
)

// SetLogger sets the logger used for factor table loading diagnostics.
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l.With().Str("component", "carbon").Logger()
}

func getLogger() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
