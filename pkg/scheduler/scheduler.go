// Package scheduler runs the periodic auto-resolution pass across all
// organizations with reconciliation enabled.
package scheduler

import (
	"context"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
	"github.com/mdmkit/reconcile-engine/pkg/services"
)

// ScopeProvider hands out scoped database contexts. Satisfied by
// database.OrgScopeProvider.
type ScopeProvider interface {
	WithOrgScope(ctx context.Context, orgID uuid.UUID) (context.Context, func(), error)
	WithCentralScope(ctx context.Context) (context.Context, func(), error)
}

// AutoResolver applies an organization's resolution policy to its pending
// conflicts. Satisfied by services.AutoResolutionService.
type AutoResolver interface {
	AutoResolve(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (*services.AutoResolveResult, error)
}

// Scheduler triggers auto-resolution on a cron schedule.
type Scheduler struct {
	cron         *cron.Cron
	scopes       ScopeProvider
	settingsRepo repositories.OrgSettingsRepository
	resolver     AutoResolver
	schedule     string
	logger       *zap.Logger
}

// New creates a Scheduler. The schedule accepts standard cron expressions
// and the @every form.
func New(
	scopes ScopeProvider,
	settingsRepo repositories.OrgSettingsRepository,
	resolver AutoResolver,
	schedule string,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		scopes:       scopes,
		settingsRepo: settingsRepo,
		resolver:     resolver,
		schedule:     schedule,
		logger:       logger.Named("scheduler"),
	}
}

// Start registers the auto-resolution job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Auto-resolution scheduler started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the cron loop and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Auto-resolution scheduler stopped")
}

// RunOnce executes one auto-resolution pass over every enabled organization.
// Each organization is processed independently; a failing organization never
// blocks the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	centralCtx, closeCentral, err := s.scopes.WithCentralScope(ctx)
	if err != nil {
		s.logger.Error("Failed to acquire central scope", zap.Error(err))
		return
	}
	orgs, err := s.settingsRepo.ListEnabled(centralCtx)
	closeCentral()
	if err != nil {
		s.logger.Error("Failed to list enabled organizations", zap.Error(err))
		return
	}

	for _, org := range orgs {
		if org.ConflictResolution == models.ResolutionPolicyManualReview {
			continue
		}
		s.resolveOrg(ctx, org.OrganizationID)
	}
}

func (s *Scheduler) resolveOrg(ctx context.Context, orgID uuid.UUID) {
	orgCtx, closeScope, err := s.scopes.WithOrgScope(ctx, orgID)
	if err != nil {
		s.logger.Error("Failed to acquire organization scope",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		return
	}
	defer closeScope()

	result, err := s.resolver.AutoResolve(orgCtx, orgID, nil)
	if err != nil {
		s.logger.Error("Auto-resolution pass failed",
			zap.String("organization_id", orgID.String()),
			zap.Error(err))
		return
	}

	if result.Resolved > 0 || result.Failed > 0 {
		s.logger.Info("Auto-resolution pass finished",
			zap.String("organization_id", orgID.String()),
			zap.Int("resolved", result.Resolved),
			zap.Int("failed", result.Failed))
	}
}
