package models

import (
	"time"

	"github.com/google/uuid"
)

// Entity type constants. The set is extensible; these are the types with
// configured quality schemas.
const (
	EntityTypeCompany = "company"
	EntityTypePerson  = "person"
	EntityTypeAddress = "address"
	EntityTypeProduct = "product"
	EntityTypeContact = "contact"
)

// Record status constants.
const (
	RecordStatusActive   = "active"
	RecordStatusPending  = "pending"
	RecordStatusArchived = "archived"
	RecordStatusDeleted  = "deleted"
)

// Source sync status constants.
const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
	SyncStatusError   = "error"
)

// Record sort keys accepted by the query filter.
const (
	SortByCreatedAt    = "created_at"
	SortByUpdatedAt    = "updated_at"
	SortByQualityScore = "quality_score"
)

// RecordMetadata is the bookkeeping envelope of a master record.
type RecordMetadata struct {
	CreatedBy      string         `json:"created_by,omitempty"`
	LastModifiedBy string         `json:"last_modified_by,omitempty"`
	DeletedBy      string         `json:"deleted_by,omitempty"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Custom         map[string]any `json:"custom,omitempty"`
}

// Merge applies a metadata patch shallowly: set fields of the patch replace
// the current values, Custom keys are merged per top-level key.
func (m RecordMetadata) Merge(patch RecordMetadata) RecordMetadata {
	out := m
	if patch.CreatedBy != "" {
		out.CreatedBy = patch.CreatedBy
	}
	if patch.LastModifiedBy != "" {
		out.LastModifiedBy = patch.LastModifiedBy
	}
	if patch.DeletedBy != "" {
		out.DeletedBy = patch.DeletedBy
	}
	if patch.DeletedAt != nil {
		out.DeletedAt = patch.DeletedAt
	}
	if patch.Tags != nil {
		out.Tags = patch.Tags
	}
	if patch.Custom != nil {
		merged := make(map[string]any, len(m.Custom)+len(patch.Custom))
		for k, v := range m.Custom {
			merged[k] = v
		}
		for k, v := range patch.Custom {
			merged[k] = v
		}
		out.Custom = merged
	}
	return out
}

// RecordSource tracks one external system's contribution to a master record.
// Within a record, sources are keyed by (SourceID, ExternalID).
type RecordSource struct {
	SourceID           string          `json:"source_id"`
	SourceName         string          `json:"source_name"`
	SourceType         string          `json:"source_type,omitempty"`
	ExternalID         string          `json:"external_id,omitempty"`
	LastSyncedAt       *time.Time      `json:"last_synced_at,omitempty"`
	SyncStatus         string          `json:"sync_status"`
	FieldContributions map[string]bool `json:"field_contributions,omitempty"`
}

// MasterRecord is the canonical, versioned representation of one logical
// entity within an organization.
type MasterRecord struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	EntityType     string         `json:"entity_type"`
	ExternalID     *string        `json:"external_id,omitempty"`
	Data           map[string]any `json:"data"`
	Metadata       RecordMetadata `json:"metadata"`
	Status         string         `json:"status"`
	Version        int            `json:"version"`
	QualityScore   int            `json:"quality_score"`
	Sources        []RecordSource `json:"sources"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastSyncedAt   *time.Time     `json:"last_synced_at,omitempty"`
}

// UpsertSource adds a source to the record, replacing any existing entry with
// the same (SourceID, ExternalID) key. At most one entry per key exists.
func (r *MasterRecord) UpsertSource(src RecordSource) {
	for i, existing := range r.Sources {
		if existing.SourceID == src.SourceID && existing.ExternalID == src.ExternalID {
			r.Sources[i] = src
			return
		}
	}
	r.Sources = append(r.Sources, src)
}

// RemoveSource removes the source entry keyed by (sourceID, externalID).
// Returns false when no entry matched.
func (r *MasterRecord) RemoveSource(sourceID, externalID string) bool {
	for i, src := range r.Sources {
		if src.SourceID == sourceID && src.ExternalID == externalID {
			r.Sources = append(r.Sources[:i], r.Sources[i+1:]...)
			return true
		}
	}
	return false
}

// FindSource returns the source entry keyed by (sourceID, externalID), or nil.
func (r *MasterRecord) FindSource(sourceID, externalID string) *RecordSource {
	for i := range r.Sources {
		if r.Sources[i].SourceID == sourceID && r.Sources[i].ExternalID == externalID {
			return &r.Sources[i]
		}
	}
	return nil
}

// MarkSourceSynced sets every source entry with the given sourceID to synced
// as of now. Returns false when no entry matched.
func (r *MasterRecord) MarkSourceSynced(sourceID string, now time.Time) bool {
	matched := false
	for i := range r.Sources {
		if r.Sources[i].SourceID == sourceID {
			r.Sources[i].SyncStatus = SyncStatusSynced
			t := now
			r.Sources[i].LastSyncedAt = &t
			matched = true
		}
	}
	return matched
}

// CloneData returns a shallow copy of the record's data map.
func (r *MasterRecord) CloneData() map[string]any {
	out := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		out[k] = v
	}
	return out
}

// MasterRecordFilter selects records for a query.
type MasterRecordFilter struct {
	EntityType      string
	Status          string
	IncludeDeleted  bool
	MinQualityScore *int
	// Search matches external_id and the indexed data fields name and email.
	Search   string
	Limit    int
	Offset   int
	SortBy   string // created_at | updated_at | quality_score
	SortDesc bool
}

// MasterRecordStats aggregates an organization's records. Deleted records are
// excluded everywhere except ByStatus.
type MasterRecordStats struct {
	Total               int            `json:"total"`
	ByEntityType        map[string]int `json:"by_entity_type"`
	ByStatus            map[string]int `json:"by_status"`
	AvgQualityScore     float64        `json:"avg_quality_score"`
	DistinctSourceCount int            `json:"distinct_source_count"`
}
