package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
)

// ConflictService manages the conflict lifecycle outside of resolution:
// querying, ignoring, escalating and closing conflicts.
type ConflictService struct {
	conflictRepo repositories.ConflictRepository
	logger       *zap.Logger
}

// NewConflictService creates a new ConflictService.
func NewConflictService(conflictRepo repositories.ConflictRepository, logger *zap.Logger) *ConflictService {
	return &ConflictService{
		conflictRepo: conflictRepo,
		logger:       logger.Named("conflict-service"),
	}
}

// Get returns a conflict by id.
func (s *ConflictService) Get(ctx context.Context, orgID, id uuid.UUID) (*models.DataConflict, error) {
	conflict, err := s.conflictRepo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, apperrors.ErrNotFound
	}
	return conflict, nil
}

// Query returns the filtered page of conflicts and the total match count.
func (s *ConflictService) Query(ctx context.Context, orgID uuid.UUID, filter models.ConflictFilter) ([]*models.DataConflict, int, error) {
	return s.conflictRepo.Query(ctx, orgID, filter)
}

// Stats aggregates the organization's conflicts.
func (s *ConflictService) Stats(ctx context.Context, orgID uuid.UUID) (*models.ConflictStats, error) {
	return s.conflictRepo.Stats(ctx, orgID)
}

// Ignore closes a conflict without changing any data. Ignored is terminal.
func (s *ConflictService) Ignore(ctx context.Context, orgID, id uuid.UUID, actorID, notes string) (*models.DataConflict, error) {
	conflict, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !conflict.Actionable() {
		return nil, apperrors.ErrAlreadyResolved
	}

	now := time.Now()
	update := models.ConflictStatusUpdate{
		Status:     models.ConflictStatusIgnored,
		ResolvedAt: &now,
		ResolvedBy: &actorID,
	}
	if notes != "" {
		update.ResolutionNotes = &notes
	}

	if err := s.applyUpdate(ctx, orgID, id, update); err != nil {
		return nil, err
	}

	s.logger.Info("Ignored conflict",
		zap.String("organization_id", orgID.String()),
		zap.String("conflict_id", id.String()),
		zap.String("actor", actorID))

	return s.Get(ctx, orgID, id)
}

// Escalate flags a conflict for human attention. The conflict stays
// actionable; escalation only changes its visibility.
func (s *ConflictService) Escalate(ctx context.Context, orgID, id uuid.UUID, actorID, reason string) (*models.DataConflict, error) {
	conflict, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !conflict.Actionable() {
		return nil, apperrors.ErrAlreadyResolved
	}

	metadata := make(map[string]any, len(conflict.Metadata)+3)
	for k, v := range conflict.Metadata {
		metadata[k] = v
	}
	metadata["escalated_by"] = actorID
	metadata["escalated_at"] = time.Now().Format(time.RFC3339)
	if reason != "" {
		metadata["escalation_reason"] = reason
	}

	update := models.ConflictStatusUpdate{
		Status:   models.ConflictStatusEscalated,
		Metadata: metadata,
	}

	if err := s.applyUpdate(ctx, orgID, id, update); err != nil {
		return nil, err
	}

	s.logger.Info("Escalated conflict",
		zap.String("organization_id", orgID.String()),
		zap.String("conflict_id", id.String()),
		zap.String("actor", actorID))

	return s.Get(ctx, orgID, id)
}

// MarkResolved closes a conflict with the given resolution strategy. Data
// changes, if any, are the caller's responsibility; this only records the
// outcome.
func (s *ConflictService) MarkResolved(ctx context.Context, orgID, id uuid.UUID, resolution, actorID, notes string) error {
	if !models.ValidResolution(resolution) {
		return fmt.Errorf("unknown resolution strategy %q: %w", resolution, apperrors.ErrInvalidInput)
	}

	now := time.Now()
	update := models.ConflictStatusUpdate{
		Status:     models.ConflictStatusResolved,
		Resolution: &resolution,
		ResolvedAt: &now,
		ResolvedBy: &actorID,
	}
	if notes != "" {
		update.ResolutionNotes = &notes
	}

	return s.applyUpdate(ctx, orgID, id, update)
}

// applyUpdate writes a guarded status transition. A rejected write means the
// conflict was closed concurrently or never existed.
func (s *ConflictService) applyUpdate(ctx context.Context, orgID, id uuid.UUID, update models.ConflictStatusUpdate) error {
	updated, err := s.conflictRepo.UpdateStatus(ctx, orgID, id, update)
	if err != nil {
		return err
	}
	if !updated {
		existing, err := s.conflictRepo.GetByID(ctx, orgID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrAlreadyResolved
	}
	return nil
}
