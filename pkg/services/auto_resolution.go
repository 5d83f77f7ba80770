package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
)

// AutoResolveActor is the actor id recorded on policy-driven resolutions.
const AutoResolveActor = "auto-resolver"

// AutoResolveResult summarizes one auto-resolution pass.
type AutoResolveResult struct {
	Resolved int      `json:"resolved"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// AutoResolutionService applies the organization's resolution policy to
// pending conflicts. Each conflict is resolved independently; one failure
// never aborts the pass.
type AutoResolutionService struct {
	conflictRepo repositories.ConflictRepository
	orgConfig    OrgConfigProvider
	resolver     *ResolutionService
	logger       *zap.Logger
}

// NewAutoResolutionService creates a new AutoResolutionService.
func NewAutoResolutionService(
	conflictRepo repositories.ConflictRepository,
	orgConfig OrgConfigProvider,
	resolver *ResolutionService,
	logger *zap.Logger,
) *AutoResolutionService {
	return &AutoResolutionService{
		conflictRepo: conflictRepo,
		orgConfig:    orgConfig,
		resolver:     resolver,
		logger:       logger.Named("auto-resolution"),
	}
}

// AutoResolve resolves pending conflicts according to the organization's
// policy. With ids set, only those conflicts are considered; otherwise every
// pending conflict is. Under manual_review nothing is touched and the result
// is empty.
func (s *AutoResolutionService) AutoResolve(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (*AutoResolveResult, error) {
	settings, err := s.orgConfig.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !settings.ReconciliationEnabled {
		return nil, apperrors.ErrFeatureDisabled
	}

	result := &AutoResolveResult{}
	if settings.ConflictResolution == models.ResolutionPolicyManualReview {
		return result, nil
	}

	pending, err := s.conflictRepo.ListPending(ctx, orgID, ids)
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("auto-resolved (%s)", settings.ConflictResolution)

	for _, conflict := range pending {
		resolution, err := s.pickResolution(settings, conflict)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("conflict %s: %v", conflict.ID, err))
			continue
		}

		_, err = s.resolver.Resolve(ctx, orgID, conflict.ID, ResolveOptions{
			Resolution: resolution,
			ActorID:    AutoResolveActor,
			Notes:      notes,
		})
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("conflict %s: %v", conflict.ID, err))
			s.logger.Warn("Auto-resolution failed for conflict",
				zap.String("organization_id", orgID.String()),
				zap.String("conflict_id", conflict.ID.String()),
				zap.Error(err))
			continue
		}
		result.Resolved++
	}

	s.logger.Info("Auto-resolution pass complete",
		zap.String("organization_id", orgID.String()),
		zap.String("policy", settings.ConflictResolution),
		zap.Int("resolved", result.Resolved),
		zap.Int("failed", result.Failed))

	return result, nil
}

// pickResolution maps the organization's policy to a strategy for one
// conflict. newest_wins trusts the incoming source value outright;
// source_priority accepts the source value only when the conflict's source
// is the organization's top-priority source.
func (s *AutoResolutionService) pickResolution(settings *models.OrgSettings, conflict *models.DataConflict) (string, error) {
	switch settings.ConflictResolution {
	case models.ResolutionPolicyNewestWins:
		return models.ResolutionAcceptSource, nil
	case models.ResolutionPolicySourcePriority:
		if len(settings.SourcePriority) > 0 && conflict.SourceID == settings.SourcePriority[0] {
			return models.ResolutionAcceptSource, nil
		}
		return models.ResolutionKeepMaster, nil
	default:
		return "", fmt.Errorf("unknown resolution policy %q", settings.ConflictResolution)
	}
}
