package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"recurring-billing/internal/domain/model"
	"recurring-billing/internal/domain/ports/repository"
	"recurring-billing/internal/infra/metrics"
	red "recurring-billing/internal/infra/redis"
)

var _ repository.SubscriptionPlanRepository = (*planRepoCacheDecorator)(nil)

const planListKey = "plans:all"

type planRepoCacheDecorator struct {
	inner repository.SubscriptionPlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.SubscriptionPlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.SubscriptionPlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "PlanCache").Logger()
	return &planRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   &l,
	}
}

func planKey(id string) string { return fmt.Sprintf("plan:%s", id) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionPlan, error) {
	key := planKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	} else if !red.IsNil(err) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		bytes, _ := json.Marshal(plan)
		if err := d.cache.Set(ctx, key, bytes, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return plan, nil
}

// For write operations, we must invalidate the cache.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.SubscriptionPlan) error {
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, planKey(plan.ID), planListKey); err != nil {
		d.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("plan cache invalidation failed")
	}
	return nil
}

// Also cache the full list of plans
func (d *planRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubscriptionPlan, error) {
	val, err := d.cache.Get(ctx, planListKey)
	if err == nil {
		var plans []*model.SubscriptionPlan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		bytes, _ := json.Marshal(plans)
		_ = d.cache.Set(ctx, planListKey, bytes, d.ttl)
	}
	return plans, nil
}
