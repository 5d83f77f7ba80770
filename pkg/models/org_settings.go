package models

import (
	"time"

	"github.com/google/uuid"
)

// Auto-resolution policy constants.
const (
	ResolutionPolicyNewestWins     = "newest_wins"
	ResolutionPolicySourcePriority = "source_priority"
	ResolutionPolicyManualReview   = "manual_review"
)

// OrgSettings is the organization-level reconciliation configuration.
// Read-only from the engine's perspective.
type OrgSettings struct {
	OrganizationID        uuid.UUID `json:"organization_id"`
	ReconciliationEnabled bool      `json:"reconciliation_enabled"`
	ConflictResolution    string    `json:"conflict_resolution"`
	SourcePriority        []string  `json:"source_priority,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultOrgSettings returns the settings assumed for an organization with no
// stored configuration: reconciliation off, everything routed to humans.
func DefaultOrgSettings(orgID uuid.UUID) *OrgSettings {
	return &OrgSettings{
		OrganizationID:        orgID,
		ReconciliationEnabled: false,
		ConflictResolution:    ResolutionPolicyManualReview,
	}
}
