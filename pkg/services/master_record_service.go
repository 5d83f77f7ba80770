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

// CreateMasterRecordInput carries the fields for a new master record.
type CreateMasterRecordInput struct {
	EntityType string
	ExternalID string
	Data       map[string]any
	Metadata   models.RecordMetadata
	Sources    []models.RecordSource
	ActorID    string
}

// UpdateMasterRecordInput is a partial update. Data keys are merged into the
// record's data (a nil value is stored as null), Metadata is merged per field,
// Status replaces the record status when set.
type UpdateMasterRecordInput struct {
	Data     map[string]any
	Metadata *models.RecordMetadata
	Status   string
	ActorID  string
	// Context is attached to the change log entry for this update.
	Context map[string]any
}

// MasterRecordService manages the lifecycle of master records. Every
// mutation after creation snapshots the pre-mutation state and bumps the
// version by exactly one.
type MasterRecordService struct {
	recordRepo  repositories.MasterRecordRepository
	versionRepo repositories.RecordVersionRepository
	orgConfig   OrgConfigProvider
	tracker     ChangeTracker
	logger      *zap.Logger
}

// NewMasterRecordService creates a new MasterRecordService.
func NewMasterRecordService(
	recordRepo repositories.MasterRecordRepository,
	versionRepo repositories.RecordVersionRepository,
	orgConfig OrgConfigProvider,
	tracker ChangeTracker,
	logger *zap.Logger,
) *MasterRecordService {
	return &MasterRecordService{
		recordRepo:  recordRepo,
		versionRepo: versionRepo,
		orgConfig:   orgConfig,
		tracker:     tracker,
		logger:      logger.Named("master-record-service"),
	}
}

// Create creates a new master record at version 1 with its quality score
// computed from the initial data.
func (s *MasterRecordService) Create(ctx context.Context, orgID uuid.UUID, input CreateMasterRecordInput) (*models.MasterRecord, error) {
	if err := s.requireEnabled(ctx, orgID); err != nil {
		return nil, err
	}
	if input.EntityType == "" {
		return nil, fmt.Errorf("entity type is required: %w", apperrors.ErrInvalidInput)
	}

	now := time.Now()
	record := &models.MasterRecord{
		OrganizationID: orgID,
		EntityType:     input.EntityType,
		Data:           input.Data,
		Metadata:       input.Metadata,
		Status:         models.RecordStatusActive,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if record.Data == nil {
		record.Data = map[string]any{}
	}
	if input.ExternalID != "" {
		externalID := input.ExternalID
		record.ExternalID = &externalID
	}
	if input.ActorID != "" {
		record.Metadata.CreatedBy = input.ActorID
	}
	for _, src := range input.Sources {
		if src.SyncStatus == "" {
			src.SyncStatus = models.SyncStatusPending
		}
		record.UpsertSource(src)
	}
	record.QualityScore = ScoreQuality(record.EntityType, record.Data)

	if err := s.recordRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.tracker.Track(ctx, orgID, record.ID, models.ChangeActionCreate, nil, record.Data, input.ActorID, nil)
	s.logger.Info("Created master record",
		zap.String("organization_id", orgID.String()),
		zap.String("record_id", record.ID.String()),
		zap.String("entity_type", record.EntityType),
		zap.Int("quality_score", record.QualityScore))

	return record, nil
}

// Get returns a master record by id.
func (s *MasterRecordService) Get(ctx context.Context, orgID, id uuid.UUID) (*models.MasterRecord, error) {
	record, err := s.recordRepo.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.ErrNotFound
	}
	return record, nil
}

// GetByExternalID returns the record keyed by (entityType, externalID).
func (s *MasterRecordService) GetByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*models.MasterRecord, error) {
	record, err := s.recordRepo.GetByExternalID(ctx, orgID, entityType, externalID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, apperrors.ErrNotFound
	}
	return record, nil
}

// Update applies a partial update to a record, snapshots its previous state
// and bumps the version. The quality score is recomputed from the merged
// data.
func (s *MasterRecordService) Update(ctx context.Context, orgID, id uuid.UUID, input UpdateMasterRecordInput) (*models.MasterRecord, error) {
	current, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	snapshot := models.SnapshotOf(current, input.ActorID)
	previous := current.Data

	// Shallow merge: the patch wins per top-level key, null included. Null
	// values stay visible in the record rather than dropping the key.
	next := *current
	next.Data = current.CloneData()
	for k, v := range input.Data {
		next.Data[k] = v
	}

	metaPatch := models.RecordMetadata{LastModifiedBy: input.ActorID}
	if input.Metadata != nil {
		metaPatch = *input.Metadata
		metaPatch.LastModifiedBy = input.ActorID
	}
	next.Metadata = current.Metadata.Merge(metaPatch)

	if input.Status != "" {
		next.Status = input.Status
	}
	next.QualityScore = ScoreQuality(next.EntityType, next.Data)
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()

	if err := s.recordRepo.Update(ctx, &next, snapshot, current.Version); err != nil {
		return nil, err
	}

	s.tracker.Track(ctx, orgID, id, models.ChangeActionUpdate, previous, next.Data, input.ActorID, input.Context)

	return &next, nil
}

// SoftDelete marks a record deleted, preserving it for history and audit.
// Deleting an already deleted record is a no-op.
func (s *MasterRecordService) SoftDelete(ctx context.Context, orgID, id uuid.UUID, actorID string) error {
	current, err := s.Get(ctx, orgID, id)
	if err != nil {
		return err
	}
	if current.Status == models.RecordStatusDeleted {
		return nil
	}

	snapshot := models.SnapshotOf(current, actorID)
	now := time.Now()

	next := *current
	next.Status = models.RecordStatusDeleted
	next.Metadata = current.Metadata.Merge(models.RecordMetadata{
		DeletedBy: actorID,
		DeletedAt: &now,
	})
	next.Version = current.Version + 1
	next.UpdatedAt = now

	if err := s.recordRepo.Update(ctx, &next, snapshot, current.Version); err != nil {
		return err
	}

	s.tracker.Track(ctx, orgID, id, models.ChangeActionDelete, current.Data, nil, actorID, nil)
	s.logger.Info("Soft deleted master record",
		zap.String("organization_id", orgID.String()),
		zap.String("record_id", id.String()))

	return nil
}

// AddSource attaches a source contribution to a record, replacing any
// existing entry with the same (SourceID, ExternalID).
func (s *MasterRecordService) AddSource(ctx context.Context, orgID, id uuid.UUID, src models.RecordSource, actorID string) (*models.MasterRecord, error) {
	current, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	if src.SourceID == "" {
		return nil, fmt.Errorf("source id is required: %w", apperrors.ErrInvalidInput)
	}
	if src.SyncStatus == "" {
		src.SyncStatus = models.SyncStatusPending
	}
	if src.LastSyncedAt == nil {
		now := time.Now()
		src.LastSyncedAt = &now
	}

	snapshot := models.SnapshotOf(current, actorID)

	next := *current
	next.Sources = append([]models.RecordSource(nil), current.Sources...)
	next.UpsertSource(src)
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()

	if err := s.recordRepo.Update(ctx, &next, snapshot, current.Version); err != nil {
		return nil, err
	}
	return &next, nil
}

// RemoveSource detaches a source entry from a record.
func (s *MasterRecordService) RemoveSource(ctx context.Context, orgID, id uuid.UUID, sourceID, externalID string, actorID string) (*models.MasterRecord, error) {
	current, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	snapshot := models.SnapshotOf(current, actorID)

	next := *current
	next.Sources = append([]models.RecordSource(nil), current.Sources...)
	if !next.RemoveSource(sourceID, externalID) {
		return nil, fmt.Errorf("source not attached to record: %w", apperrors.ErrNotFound)
	}
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()

	if err := s.recordRepo.Update(ctx, &next, snapshot, current.Version); err != nil {
		return nil, err
	}
	return &next, nil
}

// MarkSynced marks all of a record's entries for the given source as synced.
// A source that is not attached to the record is a no-op; no version is
// consumed.
func (s *MasterRecordService) MarkSynced(ctx context.Context, orgID, id uuid.UUID, sourceID string) error {
	current, err := s.Get(ctx, orgID, id)
	if err != nil {
		return err
	}

	snapshot := models.SnapshotOf(current, "")
	now := time.Now()

	next := *current
	next.Sources = append([]models.RecordSource(nil), current.Sources...)
	if !next.MarkSourceSynced(sourceID, now) {
		return nil
	}
	next.LastSyncedAt = &now
	next.Version = current.Version + 1
	next.UpdatedAt = now

	return s.recordRepo.Update(ctx, &next, snapshot, current.Version)
}

// Query returns the filtered page of records and the total match count.
func (s *MasterRecordService) Query(ctx context.Context, orgID uuid.UUID, filter models.MasterRecordFilter) ([]*models.MasterRecord, int, error) {
	return s.recordRepo.Query(ctx, orgID, filter)
}

// Stats aggregates the organization's records.
func (s *MasterRecordService) Stats(ctx context.Context, orgID uuid.UUID) (*models.MasterRecordStats, error) {
	return s.recordRepo.Stats(ctx, orgID)
}

// ListVersions returns a record's version history, newest first.
func (s *MasterRecordService) ListVersions(ctx context.Context, orgID, id uuid.UUID, limit int) ([]*models.MasterRecordVersion, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	return s.versionRepo.ListByRecord(ctx, orgID, id, limit)
}

func (s *MasterRecordService) requireEnabled(ctx context.Context, orgID uuid.UUID) error {
	settings, err := s.orgConfig.Get(ctx, orgID)
	if err != nil {
		return err
	}
	if !settings.ReconciliationEnabled {
		return apperrors.ErrFeatureDisabled
	}
	return nil
}
