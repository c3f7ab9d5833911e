package main

import (
	"context"
	"fmt"

	"github.com/chatdb/chatdb/internal/config"
	"github.com/chatdb/chatdb/internal/explore"
	"github.com/chatdb/chatdb/internal/intent"
	"github.com/chatdb/chatdb/internal/profile"
	"github.com/chatdb/chatdb/internal/render"
	"github.com/chatdb/chatdb/internal/store/lake"
	"github.com/chatdb/chatdb/internal/store/mongostore"
	"github.com/chatdb/chatdb/internal/store/sqlstore"
	s3store "github.com/chatdb/chatdb/internal/storage/s3"
)

type openedBackend struct {
	backend explore.Backend
	ping    func(ctx context.Context) error
	close   func(ctx context.Context) error
}

func openBackend(ctx context.Context, cfg config.Config) (openedBackend, error) {
	switch cfg.Backend {
	case config.BackendMySQL, config.BackendPostgres, config.BackendDuckDB:
		store, err := sqlstore.Open(ctx, sqlstore.DBConfig{
			Dialect:         string(cfg.Backend),
			DSN:             cfg.SQL.DSN,
			MaxOpenConns:    cfg.SQL.MaxOpenConns,
			MaxIdleConns:    cfg.SQL.MaxIdleConns,
			ConnMaxIdleTime: cfg.SQL.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.SQL.ConnMaxLifetime,
		})
		if err != nil {
			return openedBackend{}, err
		}
		return openedBackend{
			backend: explore.Backend{
				Name:     string(cfg.Backend),
				Noun:     "rows",
				Lister:   store,
				Profiler: profile.NewRelational(store),
				Parser:   intent.NewParser(intent.RelationalRegistry()),
				Renderer: render.NewSQL(store.Dialect()),
				Engine:   store,
			},
			ping:  store.Ping,
			close: func(context.Context) error { return store.Close() },
		}, nil
	case config.BackendMongo:
		store, err := mongostore.Open(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return openedBackend{}, err
		}
		return openedBackend{
			backend: explore.Backend{
				Name:     string(cfg.Backend),
				Noun:     "documents",
				Lister:   store,
				Profiler: profile.NewDocument(store),
				Parser:   intent.NewParser(intent.DocumentRegistry()),
				Renderer: render.NewPipeline(),
				Engine:   store,
			},
			ping:  store.Ping,
			close: store.Close,
		}, nil
	case config.BackendLake:
		objects, err := s3store.New(ctx, s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			return openedBackend{}, err
		}
		store := lake.New(objects)
		return openedBackend{
			backend: explore.Backend{
				Name:     string(cfg.Backend),
				Noun:     "rows",
				Lister:   store,
				Profiler: profile.NewRelational(store),
				Parser:   intent.NewParser(intent.RelationalRegistry()),
				Renderer: render.NewSQL(render.DuckDB),
				Engine:   store,
			},
			ping:  store.Ping,
			close: func(context.Context) error { return nil },
		}, nil
	default:
		return openedBackend{}, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}
