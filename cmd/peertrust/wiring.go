package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"peertrust/internal/config"
	"peertrust/internal/engine"
	"peertrust/internal/opinioncache"
	"peertrust/internal/repository"
	"peertrust/internal/repository/memory"
	"peertrust/internal/repository/redis"
	"peertrust/internal/repository/sqlite"
	"peertrust/internal/service"
)

// openStore opens the configured trust store backend
func openStore(ctx context.Context, sc config.StoreConfig) (repository.TrustStore, error) {
	switch sc.Backend {
	case config.BackendRedis:
		store, err := redis.New(ctx, redis.Options{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		log.Infof("Trust store: redis at %s (prefix %q)", sc.Redis.Addr, sc.Redis.KeyPrefix)
		return store, nil
	case config.BackendSQLite:
		store, err := sqlite.New(sc.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Infof("Trust store: sqlite at %s", sc.SQLite.Path)
		return store, nil
	case config.BackendMemory:
		log.Warn("Trust store: memory, nothing will survive a restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

// engineSettings maps the trust section of a config onto engine settings
func engineSettings(c *config.Config) engine.Settings {
	return engine.Settings{
		MinRecommendationTrust: c.Trust.MinRecommendationTrust,
		MinAggregationWeight:   c.Trust.MinAggregationWeight,
	}
}

// newTrustService builds the engine, cache and service over store
func newTrustService(c *config.Config, store repository.TrustStore, bus *service.EventBus) (*service.TrustService, error) {
	clk := clock.New()

	eng, err := engine.New(store, clk, engineSettings(c))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	cache, err := opinioncache.New(store, clk, c.Cache.TTL.Duration())
	if err != nil {
		return nil, fmt.Errorf("failed to create opinion cache: %w", err)
	}
	return service.NewTrustService(store, eng, cache, bus, clk), nil
}

// reloadSettings applies the runtime-tunable part of the config at path
func reloadSettings(path string, svc *service.TrustService) error {
	next, _, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}
	return svc.ApplySettings(engineSettings(next), next.Cache.TTL.Duration())
}
