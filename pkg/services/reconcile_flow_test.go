package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/models"
)

// TestReconcileFlow walks the full path: create a record, detect a source
// disagreement, resolve it by accepting the source value.
func TestReconcileFlow(t *testing.T) {
	records := newRecordServiceFixture(enabledOrgConfig(models.ResolutionPolicyManualReview))
	conflictRepo := newMockConflictRepo()
	detector := NewConflictDetectionService(records.repo, conflictRepo, zap.NewNop())
	conflicts := NewConflictService(conflictRepo, zap.NewNop())
	resolver := NewResolutionService(records.svc, conflicts, zap.NewNop())

	ctx := context.Background()
	orgID := uuid.New()

	record, err := records.svc.Create(ctx, orgID, CreateMasterRecordInput{
		EntityType: models.EntityTypeCompany,
		Data:       map[string]any{"name": "Acme"},
		ActorID:    "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 25, record.QualityScore)

	detected, err := detector.Detect(ctx, orgID, record.ID, "crm-1", "CRM", map[string]any{
		"name":  "Acme Corp",
		"email": "x@acme.com",
	})
	require.NoError(t, err)

	// only the disagreeing field conflicts; email is enrichment, not a conflict
	require.Len(t, detected, 1)
	assert.Equal(t, "name", detected[0].Field)
	assert.Equal(t, "Acme", detected[0].MasterValue)
	assert.Equal(t, "Acme Corp", detected[0].SourceValue)

	result, err := resolver.Resolve(ctx, orgID, detected[0].ID, ResolveOptions{
		Resolution: models.ResolutionAcceptSource,
		ActorID:    "user-2",
	})
	require.NoError(t, err)

	require.NotNil(t, result.MasterRecord)
	assert.Equal(t, 2, result.MasterRecord.Version)
	assert.Equal(t, "Acme Corp", result.MasterRecord.Data["name"])
	assert.Equal(t, 25, result.MasterRecord.QualityScore)

	assert.Equal(t, models.ConflictStatusResolved, result.Conflict.Status)
	require.NotNil(t, result.Conflict.Resolution)
	assert.Equal(t, models.ResolutionAcceptSource, *result.Conflict.Resolution)

	// the resolution left a change log entry with its provenance
	require.NotEmpty(t, records.changeLog.entries)
	last := records.changeLog.entries[len(records.changeLog.entries)-1]
	assert.Equal(t, models.ChangeActionUpdate, last.Action)
	assert.Equal(t, "conflict resolution", last.Context["reason"])
	assert.Equal(t, "CRM", last.Context["source"])
}
