package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sudo-init-do/tasking/internal/config"
	"github.com/sudo-init-do/tasking/internal/db"
)

// Open connects the store selected by cfg.StoreType and prepares its schema.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StoreType {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := db.Init(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		s := NewMongoStore(client, cfg.MongoDB)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store type %q", cfg.StoreType)
}
