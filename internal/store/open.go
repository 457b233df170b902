package store

import (
	"context"
	"fmt"

	"dinner_recipe_bot/internal/config"
	"dinner_recipe_bot/internal/domain"
)

// Open constructs the settings store selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg config.Config) (domain.SettingsStore, error) {
	switch cfg.StoreBackend {
	case "", config.BackendMemory:
		return NewMemoryStore(), nil

	case config.BackendMongo:
		manager, err := NewManager(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := manager.EnsureIndexes(ctx); err != nil {
			_ = manager.Close(ctx)
			return nil, err
		}
		return NewMongoStore(manager.UserStates(), manager), nil

	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
