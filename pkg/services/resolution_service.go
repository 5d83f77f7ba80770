package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/retry"
)

// ResolveOptions carries the strategy and inputs for resolving a conflict.
type ResolveOptions struct {
	// Resolution is one of the models.Resolution* strategies.
	Resolution string
	// MergedValue is the caller-provided value for the merge strategy.
	MergedValue any
	ActorID     string
	Notes       string
}

// ResolutionResult reports the outcome of a resolution.
type ResolutionResult struct {
	Conflict       *models.DataConflict `json:"conflict"`
	MasterRecord   *models.MasterRecord `json:"master_record,omitempty"`
	AppliedChanges map[string]any       `json:"applied_changes,omitempty"`
}

// ResolutionService applies resolution strategies to conflicts. Strategies
// that change master data go through the record service's versioned update
// path, so every applied resolution leaves a snapshot behind.
type ResolutionService struct {
	records   *MasterRecordService
	conflicts *ConflictService
	logger    *zap.Logger
}

// NewResolutionService creates a new ResolutionService.
func NewResolutionService(records *MasterRecordService, conflicts *ConflictService, logger *zap.Logger) *ResolutionService {
	return &ResolutionService{
		records:   records,
		conflicts: conflicts,
		logger:    logger.Named("resolution-service"),
	}
}

// Resolve closes a conflict with the chosen strategy. keep_master and manual
// change no data; accept_source writes the source value into the conflicted
// field; merge writes the caller-provided merged value. Invalid input leaves
// the conflict untouched and still actionable.
func (s *ResolutionService) Resolve(ctx context.Context, orgID, conflictID uuid.UUID, opts ResolveOptions) (*ResolutionResult, error) {
	conflict, err := s.conflicts.Get(ctx, orgID, conflictID)
	if err != nil {
		return nil, err
	}
	if !conflict.Actionable() {
		return nil, apperrors.ErrAlreadyResolved
	}

	result := &ResolutionResult{}

	switch opts.Resolution {
	case models.ResolutionKeepMaster, models.ResolutionManual:
		// No data change. manual records that a human adjusted the record
		// out of band.

	case models.ResolutionAcceptSource:
		if conflict.Field == "" {
			return nil, fmt.Errorf("conflict has no field to apply the source value to: %w", apperrors.ErrInvalidInput)
		}
		record, err := s.applyFieldChange(ctx, orgID, conflict.MasterRecordID, conflict.Field, conflict.SourceValue, opts.ActorID, sourceLabel(conflict))
		if err != nil {
			return nil, err
		}
		result.MasterRecord = record
		result.AppliedChanges = map[string]any{conflict.Field: conflict.SourceValue}

	case models.ResolutionMerge:
		if conflict.Field == "" {
			return nil, fmt.Errorf("conflict has no field to merge into: %w", apperrors.ErrInvalidInput)
		}
		if opts.MergedValue == nil {
			return nil, fmt.Errorf("merge resolution requires a merged value: %w", apperrors.ErrInvalidInput)
		}
		record, err := s.applyFieldChange(ctx, orgID, conflict.MasterRecordID, conflict.Field, opts.MergedValue, opts.ActorID, sourceLabel(conflict))
		if err != nil {
			return nil, err
		}
		result.MasterRecord = record
		result.AppliedChanges = map[string]any{conflict.Field: opts.MergedValue}

	default:
		return nil, fmt.Errorf("unknown resolution strategy %q: %w", opts.Resolution, apperrors.ErrInvalidInput)
	}

	if err := s.conflicts.MarkResolved(ctx, orgID, conflictID, opts.Resolution, opts.ActorID, opts.Notes); err != nil {
		return nil, err
	}

	resolved, err := s.conflicts.Get(ctx, orgID, conflictID)
	if err != nil {
		return nil, err
	}
	result.Conflict = resolved

	s.logger.Info("Resolved conflict",
		zap.String("organization_id", orgID.String()),
		zap.String("conflict_id", conflictID.String()),
		zap.String("resolution", opts.Resolution),
		zap.String("actor", opts.ActorID))

	return result, nil
}

func sourceLabel(conflict *models.DataConflict) string {
	if conflict.SourceName != "" {
		return conflict.SourceName
	}
	return conflict.SourceID
}

// applyFieldChange writes one field through the versioned update path. When
// a concurrent writer bumps the record version mid-flight the read-modify-
// write is retried once from a fresh read.
func (s *ResolutionService) applyFieldChange(ctx context.Context, orgID, recordID uuid.UUID, field string, value any, actorID, source string) (*models.MasterRecord, error) {
	var record *models.MasterRecord

	cfg := &retry.Config{
		MaxRetries:   1,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrVersionConflict)
		},
	}

	err := retry.Do(ctx, cfg, func() error {
		updated, err := s.records.Update(ctx, orgID, recordID, UpdateMasterRecordInput{
			Data:    map[string]any{field: value},
			ActorID: actorID,
			Context: map[string]any{
				"source": source,
				"reason": "conflict resolution",
			},
		})
		if err != nil {
			return err
		}
		record = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}
