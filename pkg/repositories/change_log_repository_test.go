//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/testhelpers"
)

func TestChangeLogRepository_CreateAndList(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	repo := NewChangeLogRepository()
	orgID := uuid.New()
	recordID := uuid.New()

	scope, err := testDB.DB.WithOrg(context.Background(), orgID)
	require.NoError(t, err)
	defer scope.Close()
	ctx := database.SetOrgScope(context.Background(), scope)

	entry := &models.ChangeLogEntry{
		OrganizationID: orgID,
		MasterRecordID: recordID,
		Action:         models.ChangeActionUpdate,
		PreviousData:   map[string]any{"name": "Old"},
		NewData:        map[string]any{"name": "New"},
		ActorID:        "user-1",
		Context:        map[string]any{"reason": "resolution"},
	}
	require.NoError(t, repo.Create(ctx, entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, repo.Create(ctx, &models.ChangeLogEntry{
		OrganizationID: orgID,
		MasterRecordID: recordID,
		Action:         models.ChangeActionDelete,
	}))

	entries, err := repo.ListByRecord(ctx, orgID, recordID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, models.ChangeActionDelete, entries[0].Action)
	assert.Equal(t, "Old", entries[1].PreviousData["name"])
	assert.Equal(t, "New", entries[1].NewData["name"])
	assert.Equal(t, "user-1", entries[1].ActorID)

	limited, err := repo.ListByRecord(ctx, orgID, recordID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
