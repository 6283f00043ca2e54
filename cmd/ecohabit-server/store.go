package main

import (
	"context"
	"fmt"

	"github.com/rshade/ecohabit/internal/config"
	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/storage/memory"
	"github.com/rshade/ecohabit/internal/storage/postgres"
	"github.com/rshade/ecohabit/internal/storage/sqlite"
)

// backend is a repository plus its lifecycle hooks.
type backend struct {
	repo  habits.Repository
	ping  func(context.Context) error
	close func() error
}

func openStore(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return backend{
			repo:  memory.New(),
			ping:  func(ctx context.Context) error { return ctx.Err() },
			close: func() error { return nil },
		}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		return backend{repo: store, ping: store.Ping, close: store.Close}, nil
	case config.StorePostgres:
		repo, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, err
		}
		return backend{repo: repo, ping: repo.Ping, close: repo.Close}, nil
	default:
		return backend{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
