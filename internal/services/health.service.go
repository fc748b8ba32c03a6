package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leadflow/campaign-gateway/pkg/pg"
	"github.com/leadflow/campaign-gateway/pkg/redis"
)

// HealthService checks the two backing stores the API cannot serve without.
type HealthService struct {
	db    *pg.DB
	cache redis.RedisAdapter
}

func NewHealthService(db *pg.DB, cache redis.RedisAdapter) *HealthService {
	return &HealthService{
		db:    db,
		cache: cache,
	}
}

func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.Read(ctx).DB()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if cmd := s.cache.Client().Ping(ctx); cmd.Err() != nil {
		return fmt.Errorf("redis: %w", cmd.Err())
	}
	return nil
}
