package models

import (
	"time"

	"github.com/google/uuid"
)

// Conflict type constants. field_value is the only type emitted by the
// detector; the others share the same lifecycle and storage shape.
const (
	ConflictTypeFieldValue      = "field_value"
	ConflictTypeRecordExistence = "record_existence"
	ConflictTypeRelationship    = "relationship"
	ConflictTypeSchema          = "schema"
)

// Conflict status constants. Resolved and ignored are terminal; escalated is
// a visibility flag and remains actionable.
const (
	ConflictStatusPending   = "pending"
	ConflictStatusResolved  = "resolved"
	ConflictStatusIgnored   = "ignored"
	ConflictStatusEscalated = "escalated"
)

// Resolution strategy constants.
const (
	ResolutionKeepMaster   = "keep_master"
	ResolutionAcceptSource = "accept_source"
	ResolutionMerge        = "merge"
	ResolutionManual       = "manual"
)

// DataConflict is a detected disagreement between a source's reported value
// and the master record's current value. For a given
// (master_record_id, source_id, field) at most one pending conflict exists.
type DataConflict struct {
	ID              uuid.UUID      `json:"id"`
	OrganizationID  uuid.UUID      `json:"organization_id"`
	MasterRecordID  uuid.UUID      `json:"master_record_id"`
	SourceID        string         `json:"source_id"`
	SourceName      string         `json:"source_name"`
	ConflictType    string         `json:"conflict_type"`
	Field           string         `json:"field,omitempty"`
	MasterValue     any            `json:"master_value,omitempty"`
	SourceValue     any            `json:"source_value,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Status          string         `json:"status"`
	Resolution      *string        `json:"resolution,omitempty"`
	DetectedAt      time.Time      `json:"detected_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy      *string        `json:"resolved_by,omitempty"`
	ResolutionNotes *string        `json:"resolution_notes,omitempty"`
}

// Actionable reports whether the conflict can still be resolved or ignored.
func (c *DataConflict) Actionable() bool {
	return c.Status == ConflictStatusPending || c.Status == ConflictStatusEscalated
}

// ValidResolution reports whether s names a known resolution strategy.
func ValidResolution(s string) bool {
	switch s {
	case ResolutionKeepMaster, ResolutionAcceptSource, ResolutionMerge, ResolutionManual:
		return true
	}
	return false
}

// ConflictFilter selects conflicts for a query. Results are ordered by
// detected_at descending.
type ConflictFilter struct {
	MasterRecordID *uuid.UUID
	SourceID       string
	Statuses       []string
	ConflictType   string
	DetectedAfter  *time.Time
	DetectedBefore *time.Time
	Limit          int
	Offset         int
}

// ConflictStatusUpdate carries a lifecycle transition to the store. Rows are
// only updated while still pending or escalated.
type ConflictStatusUpdate struct {
	Status          string
	Resolution      *string
	ResolvedBy      *string
	ResolvedAt      *time.Time
	ResolutionNotes *string
	Metadata        map[string]any // replaces stored metadata when non-nil
}

// ConflictStats aggregates an organization's conflicts.
type ConflictStats struct {
	Total                int            `json:"total"`
	ByStatus             map[string]int `json:"by_status"`
	BySource             map[string]int `json:"by_source"`
	ByType               map[string]int `json:"by_type"`
	AvgResolutionSeconds float64        `json:"avg_resolution_time_seconds"`
}
