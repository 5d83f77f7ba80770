package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mdmkit/reconcile-engine/pkg/apperrors"
	"github.com/mdmkit/reconcile-engine/pkg/models"
)

// mockMasterRecordRepo is an in-memory MasterRecordRepository that enforces
// the version check and records snapshots like the real store.
type mockMasterRecordRepo struct {
	records   map[uuid.UUID]*models.MasterRecord
	versions  []*models.MasterRecordVersion
	createErr error
	updateErr error
}

func newMockMasterRecordRepo() *mockMasterRecordRepo {
	return &mockMasterRecordRepo{records: make(map[uuid.UUID]*models.MasterRecord)}
}

func (m *mockMasterRecordRepo) Create(ctx context.Context, record *models.MasterRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

func (m *mockMasterRecordRepo) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.MasterRecord, error) {
	record, ok := m.records[id]
	if !ok || record.OrganizationID != orgID {
		return nil, nil
	}
	out := *record
	return &out, nil
}

func (m *mockMasterRecordRepo) GetByExternalID(ctx context.Context, orgID uuid.UUID, entityType, externalID string) (*models.MasterRecord, error) {
	for _, record := range m.records {
		if record.OrganizationID == orgID && record.EntityType == entityType &&
			record.ExternalID != nil && *record.ExternalID == externalID {
			out := *record
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockMasterRecordRepo) Update(ctx context.Context, record *models.MasterRecord, snapshot *models.MasterRecordVersion, expectedVersion int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.records[record.ID]
	if !ok || stored.Version != expectedVersion {
		return apperrors.ErrVersionConflict
	}
	snap := *snapshot
	snap.ID = uuid.New()
	snap.CreatedAt = time.Now()
	m.versions = append(m.versions, &snap)

	next := *record
	m.records[record.ID] = &next
	return nil
}

func (m *mockMasterRecordRepo) Query(ctx context.Context, orgID uuid.UUID, filter models.MasterRecordFilter) ([]*models.MasterRecord, int, error) {
	var out []*models.MasterRecord
	for _, record := range m.records {
		if record.OrganizationID != orgID {
			continue
		}
		if filter.EntityType != "" && record.EntityType != filter.EntityType {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Status == "" && !filter.IncludeDeleted && record.Status == models.RecordStatusDeleted {
			continue
		}
		rec := *record
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *mockMasterRecordRepo) Stats(ctx context.Context, orgID uuid.UUID) (*models.MasterRecordStats, error) {
	stats := &models.MasterRecordStats{
		ByEntityType: make(map[string]int),
		ByStatus:     make(map[string]int),
	}
	for _, record := range m.records {
		if record.OrganizationID != orgID {
			continue
		}
		stats.ByStatus[record.Status]++
		if record.Status != models.RecordStatusDeleted {
			stats.Total++
			stats.ByEntityType[record.EntityType]++
		}
	}
	return stats, nil
}

func (m *mockMasterRecordRepo) versionsOf(recordID uuid.UUID) []*models.MasterRecordVersion {
	var out []*models.MasterRecordVersion
	for _, v := range m.versions {
		if v.MasterRecordID == recordID {
			out = append(out, v)
		}
	}
	return out
}

// mockVersionRepo reads the snapshots recorded by mockMasterRecordRepo.
type mockVersionRepo struct {
	records *mockMasterRecordRepo
}

func (m *mockVersionRepo) ListByRecord(ctx context.Context, orgID, recordID uuid.UUID, limit int) ([]*models.MasterRecordVersion, error) {
	out := m.records.versionsOf(recordID)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockVersionRepo) GetByVersion(ctx context.Context, orgID, recordID uuid.UUID, version int) (*models.MasterRecordVersion, error) {
	for _, v := range m.records.versionsOf(recordID) {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, nil
}

// mockConflictRepo is an in-memory ConflictRepository with the same pending
// dedup behavior as the partial unique index.
type mockConflictRepo struct {
	conflicts map[uuid.UUID]*models.DataConflict
	upsertErr error
}

func newMockConflictRepo() *mockConflictRepo {
	return &mockConflictRepo{conflicts: make(map[uuid.UUID]*models.DataConflict)}
}

func (m *mockConflictRepo) UpsertPending(ctx context.Context, conflict *models.DataConflict) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, existing := range m.conflicts {
		if existing.Status == models.ConflictStatusPending &&
			existing.MasterRecordID == conflict.MasterRecordID &&
			existing.SourceID == conflict.SourceID &&
			existing.Field == conflict.Field {
			existing.MasterValue = conflict.MasterValue
			existing.SourceValue = conflict.SourceValue
			existing.SourceName = conflict.SourceName
			existing.DetectedAt = time.Now()
			*conflict = *existing
			return nil
		}
	}
	conflict.ID = uuid.New()
	conflict.Status = models.ConflictStatusPending
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = time.Now()
	}
	stored := *conflict
	m.conflicts[conflict.ID] = &stored
	return nil
}

func (m *mockConflictRepo) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.DataConflict, error) {
	conflict, ok := m.conflicts[id]
	if !ok || conflict.OrganizationID != orgID {
		return nil, nil
	}
	out := *conflict
	return &out, nil
}

func (m *mockConflictRepo) Query(ctx context.Context, orgID uuid.UUID, filter models.ConflictFilter) ([]*models.DataConflict, int, error) {
	var out []*models.DataConflict
	for _, conflict := range m.conflicts {
		if conflict.OrganizationID != orgID {
			continue
		}
		if filter.MasterRecordID != nil && conflict.MasterRecordID != *filter.MasterRecordID {
			continue
		}
		if filter.SourceID != "" && conflict.SourceID != filter.SourceID {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, s := range filter.Statuses {
				if conflict.Status == s {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		cf := *conflict
		out = append(out, &cf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, len(out), nil
}

func (m *mockConflictRepo) ListPending(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*models.DataConflict, error) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*models.DataConflict
	for _, conflict := range m.conflicts {
		if conflict.OrganizationID != orgID || conflict.Status != models.ConflictStatusPending {
			continue
		}
		if len(ids) > 0 && !wanted[conflict.ID] {
			continue
		}
		cf := *conflict
		out = append(out, &cf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (m *mockConflictRepo) UpdateStatus(ctx context.Context, orgID, id uuid.UUID, update models.ConflictStatusUpdate) (bool, error) {
	conflict, ok := m.conflicts[id]
	if !ok || conflict.OrganizationID != orgID || !conflict.Actionable() {
		return false, nil
	}
	conflict.Status = update.Status
	conflict.Resolution = update.Resolution
	conflict.ResolvedBy = update.ResolvedBy
	conflict.ResolvedAt = update.ResolvedAt
	conflict.ResolutionNotes = update.ResolutionNotes
	if update.Metadata != nil {
		conflict.Metadata = update.Metadata
	}
	return true, nil
}

func (m *mockConflictRepo) Stats(ctx context.Context, orgID uuid.UUID) (*models.ConflictStats, error) {
	stats := &models.ConflictStats{
		ByStatus: make(map[string]int),
		BySource: make(map[string]int),
		ByType:   make(map[string]int),
	}
	for _, conflict := range m.conflicts {
		if conflict.OrganizationID != orgID {
			continue
		}
		stats.Total++
		stats.ByStatus[conflict.Status]++
		stats.BySource[conflict.SourceID]++
		stats.ByType[conflict.ConflictType]++
	}
	return stats, nil
}

// mockChangeLogRepo records change log entries, optionally failing every
// write to exercise the best-effort path.
type mockChangeLogRepo struct {
	entries []*models.ChangeLogEntry
	failErr error
}

func (m *mockChangeLogRepo) Create(ctx context.Context, entry *models.ChangeLogEntry) error {
	if m.failErr != nil {
		return m.failErr
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockChangeLogRepo) ListByRecord(ctx context.Context, orgID, recordID uuid.UUID, limit int) ([]*models.ChangeLogEntry, error) {
	var out []*models.ChangeLogEntry
	for _, e := range m.entries {
		if e.OrganizationID == orgID && e.MasterRecordID == recordID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockOrgSettingsRepo backs OrgConfigProvider tests.
type mockOrgSettingsRepo struct {
	settings map[uuid.UUID]*models.OrgSettings
	getErr   error
	getCalls int
}

func newMockOrgSettingsRepo() *mockOrgSettingsRepo {
	return &mockOrgSettingsRepo{settings: make(map[uuid.UUID]*models.OrgSettings)}
}

func (m *mockOrgSettingsRepo) Get(ctx context.Context, orgID uuid.UUID) (*models.OrgSettings, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings[orgID], nil
}

func (m *mockOrgSettingsRepo) Upsert(ctx context.Context, settings *models.OrgSettings) error {
	m.settings[settings.OrganizationID] = settings
	return nil
}

func (m *mockOrgSettingsRepo) ListEnabled(ctx context.Context) ([]*models.OrgSettings, error) {
	var out []*models.OrgSettings
	for _, s := range m.settings {
		if s.ReconciliationEnabled {
			out = append(out, s)
		}
	}
	return out, nil
}

// mockOrgConfig returns fixed settings without touching any store.
type mockOrgConfig struct {
	settings *models.OrgSettings
	err      error
}

func (m *mockOrgConfig) Get(ctx context.Context, orgID uuid.UUID) (*models.OrgSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings != nil {
		return m.settings, nil
	}
	return models.DefaultOrgSettings(orgID), nil
}

func enabledOrgConfig(policy string, priority ...string) *mockOrgConfig {
	return &mockOrgConfig{settings: &models.OrgSettings{
		ReconciliationEnabled: true,
		ConflictResolution:    policy,
		SourcePriority:        priority,
	}}
}
