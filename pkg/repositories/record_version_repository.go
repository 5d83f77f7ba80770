package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

// RecordVersionRepository reads the append-only version history of master
// records. Snapshots are written by MasterRecordRepository.Update inside the
// mutation transaction; no update or delete path exists here.
type RecordVersionRepository interface {
	// ListByRecord returns version snapshots newest-first.
	ListByRecord(ctx context.Context, orgID, recordID uuid.UUID, limit int) ([]*models.MasterRecordVersion, error)

	// GetByVersion returns one snapshot, or nil when absent.
	GetByVersion(ctx context.Context, orgID, recordID uuid.UUID, version int) (*models.MasterRecordVersion, error)
}

type recordVersionRepository struct{}

// NewRecordVersionRepository creates a new RecordVersionRepository.
func NewRecordVersionRepository() RecordVersionRepository {
	return &recordVersionRepository{}
}

var _ RecordVersionRepository = (*recordVersionRepository)(nil)

const recordVersionColumns = `id, master_record_id, organization_id, version, data, metadata,
	       status, quality_score, changed_by, created_at`

func (r *recordVersionRepository) ListByRecord(ctx context.Context, orgID, recordID uuid.UUID, limit int) ([]*models.MasterRecordVersion, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + recordVersionColumns + `
		FROM mdm_record_versions
		WHERE organization_id = $1 AND master_record_id = $2
		ORDER BY version DESC
		LIMIT $3`

	rows, err := scope.Conn.Query(ctx, query, orgID, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list record versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.MasterRecordVersion
	for rows.Next() {
		v, err := scanRecordVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record versions: %w", err)
	}

	return versions, nil
}

func (r *recordVersionRepository) GetByVersion(ctx context.Context, orgID, recordID uuid.UUID, version int) (*models.MasterRecordVersion, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	query := `
		SELECT ` + recordVersionColumns + `
		FROM mdm_record_versions
		WHERE organization_id = $1 AND master_record_id = $2 AND version = $3`

	v, err := scanRecordVersion(scope.Conn.QueryRow(ctx, query, orgID, recordID, version).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func scanRecordVersion(scan func(...any) error) (*models.MasterRecordVersion, error) {
	var v models.MasterRecordVersion
	var data, metadata []byte

	err := scan(
		&v.ID,
		&v.MasterRecordID,
		&v.OrganizationID,
		&v.Version,
		&data,
		&metadata,
		&v.Status,
		&v.QualityScore,
		&v.ChangedBy,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan record version: %w", err)
	}

	if err := unmarshalJSONB(data, &v.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version data: %w", err)
	}
	if err := unmarshalJSONB(metadata, &v.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version metadata: %w", err)
	}

	return &v, nil
}
