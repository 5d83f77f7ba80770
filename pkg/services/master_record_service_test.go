package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

type recordServiceFixture struct {
	svc       *MasterRecordService
	repo      *mockMasterRecordRepo
	changeLog *mockChangeLogRepo
}

func newRecordServiceFixture(orgConfig OrgConfigProvider) *recordServiceFixture {
	repo := newMockMasterRecordRepo()
	changeLog := &mockChangeLogRepo{}
	tracker := NewChangeTracker(changeLog, zap.NewNop())
	svc := NewMasterRecordService(repo, &mockVersionRepo{records: repo}, orgConfig, tracker, zap.NewNop())
	return &recordServiceFixture{svc: svc, repo: repo, changeLog: changeLog}
}

func TestMasterRecordService_Create(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	orgID := uuid.New()

	record, err := f.svc.Create(context.Background(), orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		ExternalID: "crm-1",
		Data: map[string]any{
			"name":  "Acme Corp",
			"email": "info@acme.example",
		},
		ActorID: "user-1",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, 1, record.Version)
	assert.Equal(t, models.RecordStatusActive, record.Status)
	assert.Equal(t, 50, record.QualityScore)
	assert.Equal(t, "user-1", record.Metadata.CreatedBy)
	require.NotNil(t, record.ExternalID)
	assert.Equal(t, "crm-1", *record.ExternalID)

	// creation is tracked
	require.Len(t, f.changeLog.entries, 1)
	assert.Equal(t, models.ChangeActionCreate, f.changeLog.entries[0].Action)
}

func TestMasterRecordService_CreateRequiresEntityType(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))

	_, err := f.svc.Create(context.Background(), uuid.New(), CreateMasterRecordInput{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestMasterRecordService_CreateDisabledOrg(t *testing.T) {
	f := newRecordServiceFixture(&mockOrgConfig{})

	_, err := f.svc.Create(context.Background(), uuid.New(), CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
	})
	assert.ErrorIs(t, err, apperrors.ErrFeatureDisabled)
}

func TestMasterRecordService_CreateDedupesSources(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))

	record, err := f.svc.Create(context.Background(), uuid.New(), CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Sources: []models.RecordSource{
			{SourceID: "crm", ExternalID: "c-1", SourceName: "CRM"},
			{SourceID: "crm", ExternalID: "c-1", SourceName: "CRM v2"},
			{SourceID: "erp", ExternalID: "e-1", SourceName: "ERP"},
		},
	})
	require.NoError(t, err)

	require.Len(t, record.Sources, 2)
	assert.Equal(t, "CRM v2", record.Sources[0].SourceName)
	assert.Equal(t, models.SyncStatusPending, record.Sources[0].SyncStatus)
}

func TestMasterRecordService_GetNotFound(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))

	_, err := f.svc.Get(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMasterRecordService_Update(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	orgID := uuid.New()
	ctx := context.Background()

	record, err := f.svc.Create(ctx, orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Data:       map[string]any{"name": "Acme Corp", "email": "old@acme.example"},
		ActorID:    "user-1",
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, orgID, record.ID, UpdateMasterRecordInput{
		Data: map[string]any{
			"email": "new@acme.example",
			"phone": "+1-555-0100",
		},
		ActorID: "user-2",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "new@acme.example", updated.Data["email"])
	assert.Equal(t, "Acme Corp", updated.Data["name"])
	assert.Equal(t, "user-2", updated.Metadata.LastModifiedBy)
	assert.Equal(t, "user-1", updated.Metadata.CreatedBy)
	assert.Equal(t, 75, updated.QualityScore)

	// snapshot captured the pre-update state
	versions, err := f.svc.ListVersions(ctx, orgID, record.ID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "old@acme.example", versions[0].Data["email"])
	assert.Equal(t, "user-2", versions[0].ChangedBy)
}

func TestMasterRecordService_UpdateKeepsNullValues(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	orgID := uuid.New()
	ctx := context.Background()

	record, err := f.svc.Create(ctx, orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Data:       map[string]any{"name": "Acme Corp", "fax": "+1-555-0199"},
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, orgID, record.ID, UpdateMasterRecordInput{
		Data: map[string]any{"fax": nil},
	})
	require.NoError(t, err)

	// A null patch value overwrites the field but keeps the key.
	val, exists := updated.Data["fax"]
	assert.True(t, exists)
	assert.Nil(t, val)
	assert.Equal(t, "Acme Corp", updated.Data["name"])
}

func TestMasterRecordService_SoftDelete(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	orgID := uuid.New()
	ctx := context.Background()

	record, err := f.svc.Create(ctx, orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypePerson,
		Data:       map[string]any{"first_name": "Ada"},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(ctx, orgID, record.ID, "user-1"))

	deleted, err := f.svc.Get(ctx, orgID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordStatusDeleted, deleted.Status)
	assert.Equal(t, 2, deleted.Version)
	assert.Equal(t, "user-1", deleted.Metadata.DeletedBy)
	require.NotNil(t, deleted.Metadata.DeletedAt)

	// deleting again is a no-op, no extra version
	require.NoError(t, f.svc.SoftDelete(ctx, orgID, record.ID, "user-1"))
	again, err := f.svc.Get(ctx, orgID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)
}

func TestMasterRecordService_AddAndRemoveSource(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	orgID := uuid.New()
	ctx := context.Background()

	record, err := f.svc.Create(ctx, orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Data:       map[string]any{"name": "Acme Corp"},
	})
	require.NoError(t, err)

	withSource, err := f.svc.AddSource(ctx, orgID, record.ID, models.RecordSource{
		SourceID:   "crm",
		SourceName: "CRM",
		ExternalID: "c-1",
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, withSource.Version)
	require.Len(t, withSource.Sources, 1)

	removed, err := f.svc.RemoveSource(ctx, orgID, record.ID, "crm", "c-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed.Version)
	assert.Empty(t, removed.Sources)

	_, err = f.svc.RemoveSource(ctx, orgID, record.ID, "crm", "c-1", "user-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMasterRecordService_MarkSynced(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	orgID := uuid.New()
	ctx := context.Background()

	record, err := f.svc.Create(ctx, orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Sources: []models.RecordSource{
			{SourceID: "crm", ExternalID: "c-1"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkSynced(ctx, orgID, record.ID, "crm"))

	synced, err := f.svc.Get(ctx, orgID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, synced.Version)
	assert.Equal(t, models.SyncStatusSynced, synced.Sources[0].SyncStatus)
	assert.NotNil(t, synced.Sources[0].LastSyncedAt)
	assert.NotNil(t, synced.LastSyncedAt)

	// unknown source is a no-op and consumes no version
	require.NoError(t, f.svc.MarkSynced(ctx, orgID, record.ID, "erp"))
	after, err := f.svc.Get(ctx, orgID, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Version)
}

func TestMasterRecordService_TrackerFailureDoesNotFailMutation(t *testing.T) {
	f := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	f.changeLog.failErr = assert.AnError

	record, err := f.svc.Create(context.Background(), uuid.New(), CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Data:       map[string]any{"name": "Acme Corp"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Empty(t, f.changeLog.entries)
}
