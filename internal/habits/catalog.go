package habits

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed challenges.yaml
var defaultCatalog []byte

// CatalogEntry describes a challenge template. Its window starts on the day it is seeded.
type CatalogEntry struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	Reward       int    `yaml:"reward"`
	Target       int    `yaml:"target"`
	Category     string `yaml:"category"`
	DurationDays int    `yaml:"duration_days"`
}

type catalogFile struct {
	Challenges []CatalogEntry `yaml:"challenges"`
}

// DefaultCatalog returns the built-in weekly challenge catalog.
func DefaultCatalog() ([]CatalogEntry, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog))
}

// LoadCatalog parses a YAML challenge catalog.
func LoadCatalog(r io.Reader) ([]CatalogEntry, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode challenge catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Challenges))
	for i, e := range f.Challenges {
		switch {
		case e.ID == "":
			return nil, fmt.Errorf("%w: challenge %d has no id", ErrInvalidArgument, i)
		case seen[e.ID]:
			return nil, fmt.Errorf("%w: duplicate challenge id %q", ErrInvalidArgument, e.ID)
		case e.DurationDays <= 0:
			return nil, fmt.Errorf("%w: challenge %q needs a positive duration_days", ErrInvalidArgument, e.ID)
		}
		seen[e.ID] = true
	}
	return f.Challenges, nil
}

// LoadCatalogFile reads a catalog from path, or the built-in catalog when path is empty.
func LoadCatalogFile(path string) (entries []CatalogEntry, err error) {
	if path == "" {
		return DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open challenge catalog: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close challenge catalog: %w", cerr)
		}
	}()
	return LoadCatalog(f)
}

// SeedChallenges creates the catalog's challenges with windows starting today.
// Challenges that already exist are left untouched. It returns the number created.
func (s *Service) SeedChallenges(ctx context.Context, entries []CatalogEntry) (int, error) {
	start := startOfDay(s.now())
	created := 0
	for _, e := range entries {
		_, err := s.CreateChallenge(ctx, Challenge{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Reward:      e.Reward,
			Category:    e.Category,
			Target:      e.Target,
			StartDate:   start,
			EndDate:     start.Add(time.Duration(e.DurationDays) * 24 * time.Hour),
		})
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed challenge %q: %w", e.ID, err)
		}
		created++
	}
	s.logger.Info().Int("created", created).Int("catalog", len(entries)).Msg("challenges seeded")
	return created, nil
}
