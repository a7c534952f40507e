// internal/cache/rule_cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

// RuleCache keeps each clinic's active commission rules and provider
// contracts in Redis. Rule sets are read on every sale finalization and
// change rarely, so they are cached whole per clinic and invalidated on any
// rule or contract edit.
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRuleCache(cfg config.RedisConfig) *RuleCache {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RuleCache{
		client: client,
		ttl:    time.Duration(cfg.RuleTTL) * time.Second,
	}
}

func (c *RuleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RuleCache) Close() error {
	return c.client.Close()
}

func rulesKey(clinicID uuid.UUID) string {
	return "commission:rules:" + clinicID.String()
}

func contractsKey(clinicID uuid.UUID) string {
	return "commission:contracts:" + clinicID.String()
}

func (c *RuleCache) GetRules(ctx context.Context, clinicID uuid.UUID) ([]models.CommissionRule, bool) {
	data, err := c.client.Get(ctx, rulesKey(clinicID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).Warn("rule cache read failed")
		}
		return nil, false
	}

	var rules []models.CommissionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		logrus.WithError(err).Warn("rule cache entry corrupted, dropping")
		c.client.Del(ctx, rulesKey(clinicID))
		return nil, false
	}
	return rules, true
}

func (c *RuleCache) SetRules(ctx context.Context, clinicID uuid.UUID, rules []models.CommissionRule) {
	data, err := json.Marshal(rules)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, rulesKey(clinicID), data, c.ttl).Err(); err != nil {
		logrus.WithError(err).Warn("rule cache write failed")
	}
}

func (c *RuleCache) GetContracts(ctx context.Context, clinicID uuid.UUID) ([]models.ProviderContract, bool) {
	data, err := c.client.Get(ctx, contractsKey(clinicID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).Warn("contract cache read failed")
		}
		return nil, false
	}

	var contracts []models.ProviderContract
	if err := json.Unmarshal(data, &contracts); err != nil {
		logrus.WithError(err).Warn("contract cache entry corrupted, dropping")
		c.client.Del(ctx, contractsKey(clinicID))
		return nil, false
	}
	return contracts, true
}

func (c *RuleCache) SetContracts(ctx context.Context, clinicID uuid.UUID, contracts []models.ProviderContract) {
	data, err := json.Marshal(contracts)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, contractsKey(clinicID), data, c.ttl).Err(); err != nil {
		logrus.WithError(err).Warn("contract cache write failed")
	}
}

// Invalidate drops both cached sets for a clinic. Called on every rule or
// contract create/update/disable.
func (c *RuleCache) Invalidate(ctx context.Context, clinicID uuid.UUID) {
	if err := c.client.Del(ctx, rulesKey(clinicID), contractsKey(clinicID)).Err(); err != nil {
		logrus.WithError(err).Warn("rule cache invalidation failed")
	}
}
