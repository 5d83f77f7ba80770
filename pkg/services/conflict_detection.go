package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/jsonutil"
	"github.com/mdmkit/reconcile-engine/pkg/logging"
	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
)

// ConflictDetectionService compares source data against master records and
// records field-level disagreements as pending conflicts.
type ConflictDetectionService struct {
	recordRepo   repositories.MasterRecordRepository
	conflictRepo repositories.ConflictRepository
	logger       *zap.Logger
}

// NewConflictDetectionService creates a new ConflictDetectionService.
func NewConflictDetectionService(
	recordRepo repositories.MasterRecordRepository,
	conflictRepo repositories.ConflictRepository,
	logger *zap.Logger,
) *ConflictDetectionService {
	return &ConflictDetectionService{
		recordRepo:   recordRepo,
		conflictRepo: conflictRepo,
		logger:       logger.Named("conflict-detection"),
	}
}

// Detect compares a source's reported data against the master record field
// by field and upserts a pending conflict for each disagreement. A field
// conflicts when both sides hold a value, the values differ structurally,
// and the source value is not empty. Fields the master does not carry are
// enrichment, not conflicts. Re-detecting an open conflict refreshes it in
// place; at most one pending conflict exists per (record, source, field).
// Returns only the conflicts touched by this call.
func (s *ConflictDetectionService) Detect(ctx context.Context, orgID, masterRecordID uuid.UUID, sourceID, sourceName string, sourceData map[string]any) ([]*models.DataConflict, error) {
	record, err := s.recordRepo.GetByID(ctx, orgID, masterRecordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.ErrNotFound
	}

	fields := make([]string, 0, len(sourceData))
	for field := range sourceData {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conflicts []*models.DataConflict
	for _, field := range fields {
		sourceValue := sourceData[field]

		masterValue, exists := record.Data[field]
		if !exists || masterValue == nil {
			continue
		}
		if jsonutil.IsEmpty(sourceValue) {
			continue
		}
		if jsonutil.Equal(masterValue, sourceValue) {
			continue
		}

		conflict := &models.DataConflict{
			OrganizationID: orgID,
			MasterRecordID: record.ID,
			SourceID:       sourceID,
			SourceName:     sourceName,
			ConflictType:   models.ConflictTypeFieldValue,
			Field:          field,
			MasterValue:    masterValue,
			SourceValue:    sourceValue,
		}

		if err := s.conflictRepo.UpsertPending(ctx, conflict); err != nil {
			return conflicts, err
		}
		conflicts = append(conflicts, conflict)

		s.logger.Debug("Detected field conflict",
			zap.String("organization_id", orgID.String()),
			zap.String("record_id", record.ID.String()),
			zap.String("source_id", sourceID),
			zap.String("field", field),
			zap.String("master_value", logging.FieldValue(field, masterValue)),
			zap.String("source_value", logging.FieldValue(field, sourceValue)))
	}

	if len(conflicts) > 0 {
		s.logger.Info("Conflict detection complete",
			zap.String("organization_id", orgID.String()),
			zap.String("record_id", record.ID.String()),
			zap.String("source_id", sourceID),
			zap.Int("conflicts", len(conflicts)))
	}

	return conflicts, nil
}
