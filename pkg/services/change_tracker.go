package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdmkit/reconcile-engine/pkg/models"
	"github.com/mdmkit/reconcile-engine/pkg/repositories"
)

// ChangeTracker records applied data changes for downstream consumers.
// Tracking is best-effort: implementations log failures and never propagate
// them, so a change log outage cannot fail or roll back a mutation.
type ChangeTracker interface {
	Track(ctx context.Context, orgID, recordID uuid.UUID, action string, previous, next map[string]any, actorID string, meta map[string]any)
}

type dbChangeTracker struct {
	changeLogRepo repositories.ChangeLogRepository
	logger        *zap.Logger
}

// NewChangeTracker creates a ChangeTracker backed by the change log table.
func NewChangeTracker(changeLogRepo repositories.ChangeLogRepository, logger *zap.Logger) ChangeTracker {
	return &dbChangeTracker{
		changeLogRepo: changeLogRepo,
		logger:        logger.Named("change-tracker"),
	}
}

var _ ChangeTracker = (*dbChangeTracker)(nil)

func (t *dbChangeTracker) Track(ctx context.Context, orgID, recordID uuid.UUID, action string, previous, next map[string]any, actorID string, meta map[string]any) {
	entry := &models.ChangeLogEntry{
		OrganizationID: orgID,
		MasterRecordID: recordID,
		Action:         action,
		PreviousData:   previous,
		NewData:        next,
		ActorID:        actorID,
		Context:        meta,
	}

	if err := t.changeLogRepo.Create(ctx, entry); err != nil {
		t.logger.Warn("Failed to record change log entry",
			zap.String("organization_id", orgID.String()),
			zap.String("master_record_id", recordID.String()),
			zap.String("action", action),
			zap.Error(err))
	}
}
