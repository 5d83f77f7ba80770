package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
)

// OrgConfigProvider resolves an organization's reconciliation settings.
// Organizations without stored settings get the defaults (reconciliation
// disabled, manual review).
type OrgConfigProvider interface {
	Get(ctx context.Context, orgID uuid.UUID) (*models.OrgSettings, error)
}

type orgConfigService struct {
	settingsRepo repositories.OrgSettingsRepository
	cache        *redis.Client // nil disables caching
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewOrgConfigService creates an OrgConfigProvider with an optional Redis
// read-through cache. Pass a nil client to read the database directly.
func NewOrgConfigService(settingsRepo repositories.OrgSettingsRepository, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) OrgConfigProvider {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &orgConfigService{
		settingsRepo: settingsRepo,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger.Named("org-config"),
	}
}

var _ OrgConfigProvider = (*orgConfigService)(nil)

func settingsCacheKey(orgID uuid.UUID) string {
	return fmt.Sprintf("org_settings:%s", orgID)
}

func (s *orgConfigService) Get(ctx context.Context, orgID uuid.UUID) (*models.OrgSettings, error) {
	if s.cache != nil {
		if cached := s.readCache(ctx, orgID); cached != nil {
			return cached, nil
		}
	}

	settings, err := s.settingsRepo.Get(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load org settings: %w", err)
	}
	if settings == nil {
		settings = models.DefaultOrgSettings(orgID)
	}

	if s.cache != nil {
		s.writeCache(ctx, settings)
	}

	return settings, nil
}

func (s *orgConfigService) readCache(ctx context.Context, orgID uuid.UUID) *models.OrgSettings {
	raw, err := s.cache.Get(ctx, settingsCacheKey(orgID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("Settings cache read failed", zap.Error(err))
		}
		return nil
	}

	var settings models.OrgSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logger.Warn("Settings cache entry corrupt", zap.Error(err))
		return nil
	}
	return &settings
}

func (s *orgConfigService) writeCache(ctx context.Context, settings *models.OrgSettings) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, settingsCacheKey(settings.OrganizationID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Settings cache write failed", zap.Error(err))
	}
}
