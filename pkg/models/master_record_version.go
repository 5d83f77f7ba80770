package models

import (
	"time"

	"github.com/google/uuid"
)

// MasterRecordVersion is an immutable snapshot of a master record taken
// before a mutation. Version carries the record's version number at snapshot
// time, so the snapshot for version v always precedes the record at v+1.
type MasterRecordVersion struct {
	ID             uuid.UUID      `json:"id"`
	MasterRecordID uuid.UUID      `json:"master_record_id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	Version        int            `json:"version"`
	Data           map[string]any `json:"data"`
	Metadata       RecordMetadata `json:"metadata"`
	Status         string         `json:"status"`
	QualityScore   int            `json:"quality_score"`
	ChangedBy      string         `json:"changed_by"`
	CreatedAt      time.Time      `json:"created_at"`
}

// SnapshotOf captures a record's current state as a version entry attributed
// to the actor about to mutate it.
func SnapshotOf(r *MasterRecord, changedBy string) *MasterRecordVersion {
	return &MasterRecordVersion{
		MasterRecordID: r.ID,
		OrganizationID: r.OrganizationID,
		Version:        r.Version,
		Data:           r.Data,
		Metadata:       r.Metadata,
		Status:         r.Status,
		QualityScore:   r.QualityScore,
		ChangedBy:      changedBy,
	}
}
