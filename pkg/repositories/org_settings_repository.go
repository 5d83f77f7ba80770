package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mdmkit/reconcile-engine/pkg/database"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

// OrgSettingsRepository manages per-organization reconciliation settings.
type OrgSettingsRepository interface {
	// Get returns the organization's settings, or nil when none are stored.
	Get(ctx context.Context, orgID uuid.UUID) (*models.OrgSettings, error)

	// Upsert stores the organization's settings, replacing any existing row.
	Upsert(ctx context.Context, settings *models.OrgSettings) error

	// ListEnabled returns settings for all organizations that have
	// reconciliation enabled. Requires a central (unscoped) connection.
	ListEnabled(ctx context.Context) ([]*models.OrgSettings, error)
}

type orgSettingsRepository struct{}

// NewOrgSettingsRepository creates a new OrgSettingsRepository.
func NewOrgSettingsRepository() OrgSettingsRepository {
	return &orgSettingsRepository{}
}

var _ OrgSettingsRepository = (*orgSettingsRepository)(nil)

func (r *orgSettingsRepository) Get(ctx context.Context, orgID uuid.UUID) (*models.OrgSettings, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	query := `
		SELECT organization_id, reconciliation_enabled, conflict_resolution,
		       source_priority, updated_at
		FROM mdm_org_settings
		WHERE organization_id = $1`

	s, err := scanOrgSettings(scope.Conn.QueryRow(ctx, query, orgID).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *orgSettingsRepository) Upsert(ctx context.Context, settings *models.OrgSettings) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no organization scope in context")
	}

	query := `
		INSERT INTO mdm_org_settings (
			organization_id, reconciliation_enabled, conflict_resolution,
			source_priority, updated_at
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id)
		DO UPDATE SET
			reconciliation_enabled = EXCLUDED.reconciliation_enabled,
			conflict_resolution = EXCLUDED.conflict_resolution,
			source_priority = EXCLUDED.source_priority,
			updated_at = EXCLUDED.updated_at`

	settings.UpdatedAt = time.Now()
	_, err := scope.Conn.Exec(ctx, query,
		settings.OrganizationID,
		settings.ReconciliationEnabled,
		settings.ConflictResolution,
		settings.SourcePriority,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert org settings: %w", err)
	}

	return nil
}

func (r *orgSettingsRepository) ListEnabled(ctx context.Context) ([]*models.OrgSettings, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no organization scope in context")
	}

	query := `
		SELECT organization_id, reconciliation_enabled, conflict_resolution,
		       source_priority, updated_at
		FROM mdm_org_settings
		WHERE reconciliation_enabled = true
		ORDER BY organization_id`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled organizations: %w", err)
	}
	defer rows.Close()

	var all []*models.OrgSettings
	for rows.Next() {
		s, err := scanOrgSettings(rows.Scan)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating org settings: %w", err)
	}

	return all, nil
}

func scanOrgSettings(scan func(...any) error) (*models.OrgSettings, error) {
	var s models.OrgSettings
	err := scan(
		&s.OrganizationID,
		&s.ReconciliationEnabled,
		&s.ConflictResolution,
		&s.SourcePriority,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan org settings: %w", err)
	}
	return &s, nil
}
