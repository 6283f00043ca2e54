package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/storage/memory"
	"github.com/rshade/ecohabit/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) habits.Repository {
		return memory.New()
	})
}

func TestStore_CanceledContext(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.RecordHabit(ctx, habits.Habit{ID: "h"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
