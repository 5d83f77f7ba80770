package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

// ChangeLogRepository records the history of master record mutations.
type ChangeLogRepository interface {
	Create(ctx context.Context, entry *models.ChangeLogEntry) error
	ListByRecord(ctx context.Context, orgID, recordID uuid.UUID, limit int) ([]*models.ChangeLogEntry, error)
}

type changeLogRepository struct{}

// NewChangeLogRepository creates a new ChangeLogRepository.
func NewChangeLogRepository() ChangeLogRepository {
	return &changeLogRepository{}
}

var _ ChangeLogRepository = (*changeLogRepository)(nil)

func (r *changeLogRepository) Create(ctx context.Context, entry *models.ChangeLogEntry) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no organization scope in context")
	}

	previousData, err := jsonbValue(entry.PreviousData)
	if err != nil {
		return err
	}
	newData, err := jsonbValue(entry.NewData)
	if err != nil {
		return err
	}
	changeContext, err := jsonbValue(entry.Context)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mdm_change_log (
			organization_id, master_record_id, action,
			previous_data, new_data, actor_id, context
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err = scope.Conn.QueryRow(ctx, query,
		entry.OrganizationID,
		entry.MasterRecordID,
		entry.Action,
		previousData,
		newData,
		nullableString(entry.ActorID),
		changeContext,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create change log entry: %w", err)
	}

	return nil
}

func (r *changeLogRepository) ListByRecord(ctx context.Context, orgID, recordID uuid.UUID, limit int) ([]*models.ChangeLogEntry, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, organization_id, master_record_id, action,
		       previous_data, new_data, actor_id, context, created_at
		FROM mdm_change_log
		WHERE organization_id = $1 AND master_record_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := scope.Conn.Query(ctx, query, orgID, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list change log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.ChangeLogEntry
	for rows.Next() {
		e, err := scanChangeLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change log entries: %w", err)
	}

	return entries, nil
}

func scanChangeLogEntry(rows pgx.Rows) (*models.ChangeLogEntry, error) {
	var e models.ChangeLogEntry
	var previousData, newData, changeContext []byte
	var actorID *string

	err := rows.Scan(
		&e.ID,
		&e.OrganizationID,
		&e.MasterRecordID,
		&e.Action,
		&previousData,
		&newData,
		&actorID,
		&changeContext,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan change log entry: %w", err)
	}

	if actorID != nil {
		e.ActorID = *actorID
	}
	if err := unmarshalJSONB(previousData, &e.PreviousData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal previous data: %w", err)
	}
	if err := unmarshalJSONB(newData, &e.NewData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal new data: %w", err)
	}
	if err := unmarshalJSONB(changeContext, &e.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change context: %w", err)
	}

	return &e, nil
}
