package models

import (
	"time"

	"github.com/google/uuid"
)

// Change log action constants.
const (
	ChangeActionCreate = "create"
	ChangeActionUpdate = "update"
	ChangeActionDelete = "delete"
)

// ChangeLogEntry records one applied data change for downstream audit
// consumers. Writing it is best-effort; the primary mutation never waits on
// or rolls back for the change log.
type ChangeLogEntry struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	MasterRecordID uuid.UUID      `json:"master_record_id"`
	Action         string         `json:"action"`
	PreviousData   map[string]any `json:"previous_data,omitempty"`
	NewData        map[string]any `json:"new_data,omitempty"`
	ActorID        string         `json:"actor_id"`
	Context        map[string]any `json:"context,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
