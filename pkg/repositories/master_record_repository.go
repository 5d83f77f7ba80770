package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

const masterRecordColumns = `id, organization_id, entity_type, external_id, data, metadata,
	       status, version, quality_score, sources, created_at, updated_at, last_synced_at`

// MasterRecordRepository provides data access for master records. Every
// mutating write after creation goes through Update, which persists the
// pre-mutation version snapshot and the new record state in one transaction.
type MasterRecordRepository interface {
	// Create inserts a new record at version 1. No snapshot is written.
	Create(ctx context.Context, record *models.MasterRecord) error

	// GetByID returns a record by id, or nil when absent.
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.MasterRecord, error)

	// GetByExternalID returns the record keyed by (entityType, externalID),
	// or nil when absent.
	GetByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*models.MasterRecord, error)

	// Update commits the record's new state together with the pre-mutation
	// snapshot. The row is only written when its stored version still equals
	// expectedVersion; otherwise apperrors.ErrVersionConflict is returned and
	// nothing is committed.
	Update(ctx context.Context, record *models.MasterRecord, snapshot *models.MasterRecordVersion, expectedVersion int) error

	// Query returns the filtered page of records and the total match count.
	Query(ctx context.Context, orgID uuid.UUID, filter models.MasterRecordFilter) ([]*models.MasterRecord, int, error)

	// Stats aggregates the organization's records.
	Stats(ctx context.Context, orgID uuid.UUID) (*models.MasterRecordStats, error)
}

type masterRecordRepository struct{}

// NewMasterRecordRepository creates a new MasterRecordRepository.
func NewMasterRecordRepository() MasterRecordRepository {
	return &masterRecordRepository{}
}

var _ MasterRecordRepository = (*masterRecordRepository)(nil)

func (r *masterRecordRepository) Create(ctx context.Context, record *models.MasterRecord) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no organization scope in context")
	}

	data, err := jsonbValue(record.Data)
	if err != nil {
		return err
	}
	metadata, err := jsonbValue(record.Metadata)
	if err != nil {
		return err
	}
	sources, err := jsonbValue(record.Sources)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO mdm_master_records (
			organization_id, entity_type, external_id, data, metadata,
			status, version, quality_score, sources, created_at, updated_at, last_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	err = scope.Conn.QueryRow(ctx, query,
		record.OrganizationID,
		record.EntityType,
		record.ExternalID,
		data,
		metadata,
		record.Status,
		record.Version,
		record.QualityScore,
		sources,
		record.CreatedAt,
		record.UpdatedAt,
		record.LastSyncedAt,
	).Scan(&record.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("record with external id already exists: %w", apperrors.ErrInvalidInput)
		}
		return fmt.Errorf("failed to create master record: %w", err)
	}

	return nil
}

func (r *masterRecordRepository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.MasterRecord, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	query := `
		SELECT ` + masterRecordColumns + `
		FROM mdm_master_records
		WHERE organization_id = $1 AND id = $2`

	row := scope.Conn.QueryRow(ctx, query, orgID, id)
	return scanMasterRecord(row)
}

func (r *masterRecordRepository) GetByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*models.MasterRecord, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	query := `
		SELECT ` + masterRecordColumns + `
		FROM mdm_master_records
		WHERE organization_id = $1 AND entity_type = $2 AND external_id = $3`

	row := scope.Conn.QueryRow(ctx, query, orgID, entityType, externalID)
	return scanMasterRecord(row)
}

func (r *masterRecordRepository) Update(ctx context.Context, record *models.MasterRecord, snapshot *models.MasterRecordVersion, expectedVersion int) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no organization scope in context")
	}

	data, err := jsonbValue(record.Data)
	if err != nil {
		return err
	}
	metadata, err := jsonbValue(record.Metadata)
	if err != nil {
		return err
	}
	sources, err := jsonbValue(record.Sources)
	if err != nil {
		return err
	}
	snapData, err := jsonbValue(snapshot.Data)
	if err != nil {
		return err
	}
	snapMetadata, err := jsonbValue(snapshot.Metadata)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Snapshot first: the version history entry for version v must be durable
	// before the record at v+1 becomes visible.
	snapshotQuery := `
		INSERT INTO mdm_record_versions (
			master_record_id, organization_id, version, data, metadata,
			status, quality_score, changed_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, snapshotQuery,
		snapshot.MasterRecordID,
		snapshot.OrganizationID,
		snapshot.Version,
		snapData,
		snapMetadata,
		snapshot.Status,
		snapshot.QualityScore,
		snapshot.ChangedBy,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write version snapshot: %w", err)
	}

	updateQuery := `
		UPDATE mdm_master_records
		SET data = $3, metadata = $4, status = $5, version = $6,
		    quality_score = $7, sources = $8, updated_at = $9, last_synced_at = $10
		WHERE organization_id = $1 AND id = $2 AND version = $11`

	result, err := tx.Exec(ctx, updateQuery,
		record.OrganizationID,
		record.ID,
		data,
		metadata,
		record.Status,
		record.Version,
		record.QualityScore,
		sources,
		record.UpdatedAt,
		record.LastSyncedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update master record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrVersionConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *masterRecordRepository) Query(ctx context.Context, orgID uuid.UUID, filter models.MasterRecordFilter) ([]*models.MasterRecord, int, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, 0, fmt.Errorf("no organization scope in context")
	}

	countSB := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSB.Select("COUNT(*)").From("mdm_master_records")
	applyMasterRecordFilter(countSB, orgID, filter)

	countQuery, countArgs := countSB.Build()
	var total int
	if err := scope.Conn.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count master records: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(masterRecordColumns).From("mdm_master_records")
	applyMasterRecordFilter(sb, orgID, filter)

	sortColumn := models.SortByCreatedAt
	switch filter.SortBy {
	case models.SortByCreatedAt, models.SortByUpdatedAt, models.SortByQualityScore:
		sortColumn = filter.SortBy
	}
	if filter.SortDesc {
		sb.OrderBy(sortColumn).Desc()
	} else {
		sb.OrderBy(sortColumn).Asc()
	}

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
		return nil, 0, fmt.Errorf("failed to query master records: %w", err)
	}
	defer rows.Close()

	var records []*models.MasterRecord
	for rows.Next() {
		record, err := scanMasterRecordFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating master records: %w", err)
	}

	return records, total, nil
}

func applyMasterRecordFilter(sb *sqlbuilder.SelectBuilder, orgID uuid.UUID, filter models.MasterRecordFilter) {
	sb.Where(sb.Equal("organization_id", orgID))

	if filter.EntityType != "" {
		sb.Where(sb.Equal("entity_type", filter.EntityType))
	}
	if filter.Status != "" {
		sb.Where(sb.Equal("status", filter.Status))
	} else if !filter.IncludeDeleted {
		sb.Where(sb.NotEqual("status", models.RecordStatusDeleted))
	}
	if filter.MinQualityScore != nil {
		sb.Where(sb.GreaterEqualThan("quality_score", *filter.MinQualityScore))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		sb.Where(sb.Or(
			sb.ILike("external_id", pattern),
			sb.ILike("data->>'name'", pattern),
			sb.ILike("data->>'email'", pattern),
		))
	}
}

func (r *masterRecordRepository) Stats(ctx context.Context, orgID uuid.UUID) (*models.MasterRecordStats, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	stats := &models.MasterRecordStats{
		ByEntityType: make(map[string]int),
		ByStatus:     make(map[string]int),
	}

	statusQuery := `
		SELECT status, COUNT(*)
		FROM mdm_master_records
		WHERE organization_id = $1
		GROUP BY status`

	rows, err := scope.Conn.Query(ctx, statusQuery, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate record statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
		if status != models.RecordStatusDeleted {
			stats.Total += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	typeQuery := `
		SELECT entity_type, COUNT(*)
		FROM mdm_master_records
		WHERE organization_id = $1 AND status <> $2
		GROUP BY entity_type`

	typeRows, err := scope.Conn.Query(ctx, typeQuery, orgID, models.RecordStatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate entity types: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var entityType string
		var count int
		if err := typeRows.Scan(&entityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan entity type count: %w", err)
		}
		stats.ByEntityType[entityType] = count
	}
	if err := typeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity type counts: %w", err)
	}

	avgQuery := `
		SELECT COALESCE(AVG(quality_score), 0)
		FROM mdm_master_records
		WHERE organization_id = $1 AND status <> $2`

	err = scope.Conn.QueryRow(ctx, avgQuery, orgID, models.RecordStatusDeleted).
		Scan(&stats.AvgQualityScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate quality scores: %w", err)
	}

	// sources holds jsonb null for records registered without any source, so
	// it has to be coalesced to an empty array before expansion.
	sourceQuery := `
		SELECT COUNT(DISTINCT src->>'source_id')
		FROM mdm_master_records,
		     jsonb_array_elements(COALESCE(NULLIF(sources, 'null'::jsonb), '[]'::jsonb)) AS src
		WHERE organization_id = $1 AND status <> $2`

	err = scope.Conn.QueryRow(ctx, sourceQuery, orgID, models.RecordStatusDeleted).
		Scan(&stats.DistinctSourceCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count distinct sources: %w", err)
	}

	return stats, nil
}

// Scan helpers

func scanMasterRecord(row pgx.Row) (*models.MasterRecord, error) {
	record, err := scanMasterRecordValues(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func scanMasterRecordFromRows(rows pgx.Rows) (*models.MasterRecord, error) {
	return scanMasterRecordValues(rows.Scan)
}

func scanMasterRecordValues(scan func(...any) error) (*models.MasterRecord, error) {
	var rec models.MasterRecord
	var data, metadata, sources []byte

	err := scan(
		&rec.ID,
		&rec.OrganizationID,
		&rec.EntityType,
		&rec.ExternalID,
		&data,
		&metadata,
		&rec.Status,
		&rec.Version,
		&rec.QualityScore,
		&sources,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.LastSyncedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan master record: %w", err)
	}

	if err := unmarshalJSONB(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record data: %w", err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if err := unmarshalJSONB(metadata, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record metadata: %w", err)
	}
	if err := unmarshalJSONB(sources, &rec.Sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record sources: %w", err)
	}

	return &rec, nil
}
