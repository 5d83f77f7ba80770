package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"

	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

const conflictColumns = `id, organization_id, master_record_id, source_id, source_name,
	       conflict_type, field, master_value, source_value, metadata, status,
	       resolution, detected_at, resolved_at, resolved_by, resolution_notes`

// ConflictRepository provides data access for data conflicts.
type ConflictRepository interface {
	// UpsertPending creates a pending conflict, or refreshes the existing
	// pending conflict with the same (master_record_id, source_id, field)
	// key. The partial unique index serializes concurrent detections, so at
	// most one pending row per key can ever exist. The conflict's ID, status
	// and detection time are populated from the stored row.
	UpsertPending(ctx context.Context, conflict *models.DataConflict) error

	// GetByID returns a conflict by id, or nil when absent.
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.DataConflict, error)

	// Query returns the filtered page of conflicts (detected_at descending)
	// and the total match count.
	Query(ctx context.Context, orgID uuid.UUID, filter models.ConflictFilter) ([]*models.DataConflict, int, error)

	// ListPending returns pending conflicts, optionally restricted to ids.
	ListPending(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*models.DataConflict, error)

	// UpdateStatus applies a lifecycle transition. The row is only written
	// while its status is still pending or escalated; returns false when the
	// guard rejected the write (the conflict was concurrently closed or does
	// not exist).
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, update models.ConflictStatusUpdate) (bool, error)

	// Stats aggregates the organization's conflicts.
	Stats(ctx context.Context, orgID uuid.UUID) (*models.ConflictStats, error)
}

type conflictRepository struct{}

// NewConflictRepository creates a new ConflictRepository.
func NewConflictRepository() ConflictRepository {
	return &conflictRepository{}
}

var _ ConflictRepository = (*conflictRepository)(nil)

func (r *conflictRepository) UpsertPending(ctx context.Context, conflict *models.DataConflict) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no organization scope in context")
	}

	masterValue, err := jsonbValue(conflict.MasterValue)
	if err != nil {
		return err
	}
	sourceValue, err := jsonbValue(conflict.SourceValue)
	if err != nil {
		return err
	}
	metadata, err := jsonbValue(conflict.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mdm_data_conflicts (
			organization_id, master_record_id, source_id, source_name,
			conflict_type, field, master_value, source_value, metadata,
			status, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (master_record_id, source_id, field) WHERE status = 'pending'
		DO UPDATE SET
			source_value = EXCLUDED.source_value,
			master_value = EXCLUDED.master_value,
			source_name  = EXCLUDED.source_name,
			detected_at  = EXCLUDED.detected_at
		RETURNING id, status, detected_at`

	now := time.Now()
	if !conflict.DetectedAt.IsZero() {
		now = conflict.DetectedAt
	}

	err = scope.Conn.QueryRow(ctx, query,
		conflict.OrganizationID,
		conflict.MasterRecordID,
		conflict.SourceID,
		conflict.SourceName,
		conflict.ConflictType,
		conflict.Field,
		masterValue,
		sourceValue,
		metadata,
		models.ConflictStatusPending,
		now,
	).Scan(&conflict.ID, &conflict.Status, &conflict.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert conflict: %w", err)
	}

	return nil
}

func (r *conflictRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.DataConflict, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	query := `
		SELECT ` + conflictColumns + `
		FROM mdm_data_conflicts
		WHERE organization_id = $1 AND id = $2`

	c, err := scanConflict(scope.Conn.QueryRow(ctx, query, orgID, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *conflictRepository) Query(ctx context.Context, orgID uuid.UUID, filter models.ConflictFilter) ([]*models.DataConflict, int, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, 0, fmt.Errorf("no organization scope in context")
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)").From("mdm_data_conflicts")
	applyConflictFilter(countSB, orgID, filter)

	countQuery, countArgs := countSB.Build()
	var total int
	if err := scope.Conn.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conflicts: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(conflictColumns).From("mdm_data_conflicts")
	applyConflictFilter(sb, orgID, filter)
	sb.OrderBy("detected_at").Desc()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	sb.Limit(limit)
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}

	query, args := sb.Build()
	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	conflicts, err := scanConflicts(rows)
	if err != nil {
		return nil, 0, err
	}
	return conflicts, total, nil
}

func applyConflictFilter(sb *sqlbuilder.SelectBuilder, orgID uuid.UUID, filter models.ConflictFilter) {
	sb.Where(sb.Equal("organization_id", orgID))

	if filter.MasterRecordID != nil {
		sb.Where(sb.Equal("master_record_id", *filter.MasterRecordID))
	}
	if filter.SourceID != "" {
		sb.Where(sb.Equal("source_id", filter.SourceID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]any, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = s
		}
		sb.Where(sb.In("status", statuses...))
	}
	if filter.ConflictType != "" {
		sb.Where(sb.Equal("conflict_type", filter.ConflictType))
	}
	if filter.DetectedAfter != nil {
		sb.Where(sb.GreaterEqualThan("detected_at", *filter.DetectedAfter))
	}
	if filter.DetectedBefore != nil {
		sb.Where(sb.LessEqualThan("detected_at", *filter.DetectedBefore))
	}
}

func (r *conflictRepository) ListPending(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*models.DataConflict, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(conflictColumns).From("mdm_data_conflicts")
	sb.Where(sb.Equal("organization_id", orgID))
	sb.Where(sb.Equal("status", models.ConflictStatusPending))
	if len(ids) > 0 {
		idArgs := make([]any, len(ids))
		for i, id := range ids {
			idArgs[i] = id
		}
		sb.Where(sb.In("id", idArgs...))
	}
	sb.OrderBy("detected_at").Asc()

	query, args := sb.Build()
	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending conflicts: %w", err)
	}
	defer rows.Close()

	return scanConflicts(rows)
}

func (r *conflictRepository) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, update models.ConflictStatusUpdate) (bool, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return false, fmt.Errorf("no organization scope in context")
	}

	metadata, err := jsonbValue(update.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE mdm_data_conflicts
		SET status = $3,
		    resolution = $4,
		    resolved_by = $5,
		    resolved_at = $6,
		    resolution_notes = $7,
		    metadata = COALESCE($8, metadata)
		WHERE organization_id = $1 AND id = $2
		  AND status IN ($9, $10)`

	result, err := scope.Conn.Exec(ctx, query,
		orgID,
		id,
		update.Status,
		update.Resolution,
		update.ResolvedBy,
		update.ResolvedAt,
		update.ResolutionNotes,
		metadata,
		models.ConflictStatusPending,
		models.ConflictStatusEscalated,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update conflict status: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *conflictRepository) Stats(ctx context.Context, orgID uuid.UUID) (*models.ConflictStats, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	stats := &models.ConflictStats{
		ByStatus: make(map[string]int),
		BySource: make(map[string]int),
		ByType:   make(map[string]int),
	}

	groupQuery := `
		SELECT status, source_id, conflict_type, COUNT(*)
		FROM mdm_data_conflicts
		WHERE organization_id = $1
		GROUP BY status, source_id, conflict_type`

	rows, err := scope.Conn.Query(ctx, groupQuery, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conflicts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, sourceID, conflictType string
		var count int
		if err := rows.Scan(&status, &sourceID, &conflictType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan conflict count: %w", err)
		}
		stats.ByStatus[status] += count
		stats.BySource[sourceID] += count
		stats.ByType[conflictType] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflict counts: %w", err)
	}

	avgQuery := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM resolved_at - detected_at)), 0)
		FROM mdm_data_conflicts
		WHERE organization_id = $1 AND status = $2 AND resolved_at IS NOT NULL`

	err = scope.Conn.QueryRow(ctx, avgQuery, orgID, models.ConflictStatusResolved).
		Scan(&stats.AvgResolutionSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate resolution time: %w", err)
	}

	return stats, nil
}

// Scan helpers

func scanConflicts(rows pgx.Rows) ([]*models.DataConflict, error) {
	var conflicts []*models.DataConflict
	for rows.Next() {
		c, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return conflicts, nil
}

func scanConflict(scan func(...any) error) (*models.DataConflict, error) {
	var c models.DataConflict
	var field *string
	var masterValue, sourceValue, metadata []byte

	err := scan(
		&c.ID,
		&c.OrganizationID,
		&c.MasterRecordID,
		&c.SourceID,
		&c.SourceName,
		&c.ConflictType,
		&field,
		&masterValue,
		&sourceValue,
		&metadata,
		&c.Status,
		&c.Resolution,
		&c.DetectedAt,
		&c.ResolvedAt,
		&c.ResolvedBy,
		&c.ResolutionNotes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan conflict: %w", err)
	}

	if field != nil {
		c.Field = *field
	}
	if err := unmarshalJSONB(masterValue, &c.MasterValue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal master value: %w", err)
	}
	if err := unmarshalJSONB(sourceValue, &c.SourceValue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source value: %w", err)
	}
	if err := unmarshalJSONB(metadata, &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conflict metadata: %w", err)
	}

	return &c, nil
}
