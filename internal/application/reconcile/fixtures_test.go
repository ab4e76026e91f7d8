package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appaudit "github.com/syncbridge/backend/internal/application/audit"
	appsnapshot "github.com/syncbridge/backend/internal/application/snapshot"
	"github.com/syncbridge/backend/internal/domain/audit"
	"github.com/syncbridge/backend/internal/domain/mapping"
	"github.com/syncbridge/backend/internal/domain/platform"
	"github.com/syncbridge/backend/internal/domain/ratelimit"
	"github.com/syncbridge/backend/internal/domain/reconcile"
	"github.com/syncbridge/backend/internal/domain/snapshot"
	"github.com/syncbridge/backend/internal/infrastructure/ecommerce"
	"go.uber.org/zap"

	domainalert "github.com/syncbridge/backend/internal/domain/alert"
)

// openGate lets every call through. The gate's own behavior is covered in
// its package; these tests exercise sync semantics.
type openGate struct{}

func (openGate) CanProceed(ctx context.Context, userID uuid.UUID, code platform.Code) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true}, nil
}

func (openGate) RecordSuccess(ctx context.Context, userID uuid.UUID, code platform.Code) error {
	return nil
}

func (openGate) RecordFailure(ctx context.Context, userID uuid.UUID, code platform.Code, serverRetryAfter time.Duration) (ratelimit.FailureDecision, error) {
	return ratelimit.FailureDecision{}, nil
}

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memMappingRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*mapping.EntityMapping
	byKey map[string]uuid.UUID
}

func newMemMappingRepo() *memMappingRepo {
	return &memMappingRepo{
		byID:  make(map[uuid.UUID]*mapping.EntityMapping),
		byKey: make(map[string]uuid.UUID),
	}
}

func mappingKey(userID uuid.UUID, kind mapping.Kind, code platform.Code, sourceID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", userID, kind, code, sourceID)
}

func cloneMapping(m *mapping.EntityMapping) *mapping.EntityMapping {
	c := *m
	return &c
}

func (r *memMappingRepo) FindOrCreate(ctx context.Context, userID uuid.UUID, kind mapping.Kind, code platform.Code, sourceID string) (*mapping.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := mappingKey(userID, kind, code, sourceID)
	if id, ok := r.byKey[key]; ok {
		return cloneMapping(r.byID[id]), nil
	}
	m, err := mapping.NewEntityMapping(userID, kind, code, sourceID)
	if err != nil {
		return nil, err
	}
	r.byID[m.ID] = m
	r.byKey[key] = m.ID
	return cloneMapping(m), nil
}

func (r *memMappingRepo) FindByID(ctx context.Context, id uuid.UUID) (*mapping.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, mapping.ErrMappingNotFound
	}
	return cloneMapping(m), nil
}

func (r *memMappingRepo) FindBySource(ctx context.Context, userID uuid.UUID, kind mapping.Kind, code platform.Code, sourceID string) (*mapping.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[mappingKey(userID, kind, code, sourceID)]
	if !ok {
		return nil, mapping.ErrMappingNotFound
	}
	return cloneMapping(r.byID[id]), nil
}

func (r *memMappingRepo) FindByTarget(ctx context.Context, userID uuid.UUID, kind mapping.Kind, targetID string) (*mapping.EntityMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byID {
		if m.UserID == userID && m.Kind == kind && m.TargetID == targetID {
			return cloneMapping(m), nil
		}
	}
	return nil, mapping.ErrMappingNotFound
}

func (r *memMappingRepo) BindTarget(ctx context.Context, id uuid.UUID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return mapping.ErrMappingNotFound
	}
	return m.BindTarget(targetID)
}

func (r *memMappingRepo) Save(ctx context.Context, m *mapping.EntityMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; !ok {
		return mapping.ErrMappingNotFound
	}
	r.byID[m.ID] = cloneMapping(m)
	return nil
}

func (r *memMappingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return mapping.ErrMappingNotFound
	}
	delete(r.byKey, mappingKey(m.UserID, m.Kind, m.SourcePlatform, m.SourceID))
	delete(r.byID, id)
	return nil
}

func (r *memMappingRepo) FindAll(ctx context.Context, userID uuid.UUID, filter mapping.Filter) ([]mapping.EntityMapping, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []mapping.EntityMapping
	for _, m := range r.byID {
		if m.UserID != userID {
			continue
		}
		if filter.Kind != nil && m.Kind != *filter.Kind {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		out = append(out, *m)
	}
	return out, int64(len(out)), nil
}

type memSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []snapshot.Snapshot
}

func (r *memSnapshotRepo) Save(ctx context.Context, s *snapshot.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *s)
	return nil
}

func (r *memSnapshotRepo) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.snapshots {
		if r.snapshots[i].ID == id {
			s := r.snapshots[i]
			return &s, nil
		}
	}
	return nil, snapshot.ErrSnapshotNotFound
}

func (r *memSnapshotRepo) FindLatest(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (*snapshot.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *snapshot.Snapshot
	for i := range r.snapshots {
		s := &r.snapshots[i]
		if s.UserID != userID || s.EntityID != entityID || s.Platform != code {
			continue
		}
		if latest == nil || s.Version > latest.Version {
			latest = s
		}
	}
	if latest == nil {
		return nil, snapshot.ErrSnapshotNotFound
	}
	c := *latest
	return &c, nil
}

func (r *memSnapshotRepo) FindLatestBefore(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code, at time.Time) (*snapshot.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *snapshot.Snapshot
	for i := range r.snapshots {
		s := &r.snapshots[i]
		if s.UserID != userID || s.EntityID != entityID || s.Platform != code {
			continue
		}
		if s.CreatedAt.After(at) {
			continue
		}
		if latest == nil || s.Version > latest.Version {
			latest = s
		}
	}
	if latest == nil {
		return nil, snapshot.ErrSnapshotNotFound
	}
	c := *latest
	return &c, nil
}

func (r *memSnapshotRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]snapshot.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []snapshot.Snapshot
	for _, id := range ids {
		for i := range r.snapshots {
			if r.snapshots[i].ID == id {
				out = append(out, r.snapshots[i])
			}
		}
	}
	return out, nil
}

func (r *memSnapshotRepo) ListTrackedEntities(ctx context.Context, userID uuid.UUID) ([]snapshot.EntityRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[snapshot.EntityRef]bool)
	var out []snapshot.EntityRef
	for i := range r.snapshots {
		if r.snapshots[i].UserID != userID {
			continue
		}
		ref := r.snapshots[i].Ref()
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out, nil
}

func (r *memSnapshotRepo) CountByEntity(ctx context.Context, userID uuid.UUID, entityID string, code platform.Code) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.snapshots {
		if r.snapshots[i].UserID == userID && r.snapshots[i].EntityID == entityID && r.snapshots[i].Platform == code {
			n++
		}
	}
	return n, nil
}

func (r *memSnapshotRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

type memRestorePointRepo struct {
	mu     sync.Mutex
	points map[uuid.UUID]*snapshot.RestorePoint
}

func newMemRestorePointRepo() *memRestorePointRepo {
	return &memRestorePointRepo{points: make(map[uuid.UUID]*snapshot.RestorePoint)}
}

func (r *memRestorePointRepo) Save(ctx context.Context, rp *snapshot.RestorePoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rp
	r.points[rp.ID] = &c
	return nil
}

func (r *memRestorePointRepo) FindByID(ctx context.Context, id uuid.UUID) (*snapshot.RestorePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.points[id]
	if !ok {
		return nil, snapshot.ErrRestorePointNotFound
	}
	c := *rp
	return &c, nil
}

func (r *memRestorePointRepo) FindByName(ctx context.Context, userID uuid.UUID, name string) (*snapshot.RestorePoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rp := range r.points {
		if rp.UserID == userID && rp.Name == name {
			c := *rp
			return &c, nil
		}
	}
	return nil, snapshot.ErrRestorePointNotFound
}

func (r *memRestorePointRepo) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]snapshot.RestorePoint, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []snapshot.RestorePoint
	for _, rp := range r.points {
		if rp.UserID == userID {
			out = append(out, *rp)
		}
	}
	return out, int64(len(out)), nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *memAuditRepo) Save(ctx context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memAuditRepo) SaveBatch(ctx context.Context, entries []*audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries = append(r.entries, *e)
	}
	return nil
}

func (r *memAuditRepo) FindByEntity(ctx context.Context, userID uuid.UUID, q audit.Query) ([]audit.Entry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Entry
	for _, e := range r.entries {
		if e.UserID == userID && e.EntityID == q.EntityID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memAuditRepo) byField(field string) []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Entry
	for _, e := range r.entries {
		if e.FieldName == field {
			out = append(out, e)
		}
	}
	return out
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts []domainalert.Alert
}

func (r *memAlertRepo) Save(ctx context.Context, a *domainalert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, *a)
	return nil
}

func (r *memAlertRepo) FindByID(ctx context.Context, id uuid.UUID) (*domainalert.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			a := r.alerts[i]
			return &a, nil
		}
	}
	return nil, domainalert.ErrAlertNotFound
}

func (r *memAlertRepo) List(ctx context.Context, userID uuid.UUID, unacknowledgedOnly bool, page, pageSize int) ([]domainalert.Alert, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainalert.Alert
	for _, a := range r.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memAlertRepo) Acknowledge(ctx context.Context, id uuid.UUID) error {
	return nil
}

type memSyncLogRepo struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*reconcile.SyncLog
}

func newMemSyncLogRepo() *memSyncLogRepo {
	return &memSyncLogRepo{logs: make(map[uuid.UUID]*reconcile.SyncLog)}
}

func (r *memSyncLogRepo) Create(ctx context.Context, l *reconcile.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *l
	r.logs[l.ID] = &c
	return nil
}

func (r *memSyncLogRepo) Update(ctx context.Context, l *reconcile.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[l.ID]; !ok {
		return reconcile.ErrSyncLogNotFound
	}
	c := *l
	r.logs[l.ID] = &c
	return nil
}

func (r *memSyncLogRepo) FindByID(ctx context.Context, id uuid.UUID) (*reconcile.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return nil, reconcile.ErrSyncLogNotFound
	}
	c := *l
	return &c, nil
}

func (r *memSyncLogRepo) FindRunning(ctx context.Context, userID uuid.UUID) (*reconcile.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.UserID == userID && l.Status == reconcile.RunStatusRunning {
			c := *l
			return &c, nil
		}
	}
	return nil, reconcile.ErrSyncLogNotFound
}

func (r *memSyncLogRepo) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]reconcile.SyncLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reconcile.SyncLog
	for _, l := range r.logs {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, int64(len(out)), nil
}

// ---------------------------------------------------------------------------
// Fixture assembly
// ---------------------------------------------------------------------------

type syncFixture struct {
	userID    uuid.UUID
	netsuite  *ecommerce.MemoryConnector
	shopify   *ecommerce.MemoryConnector
	mappings  *memMappingRepo
	snapshots *memSnapshotRepo
	audits    *memAuditRepo
	products  *ProductSyncer
	inventory *InventorySyncer
	orders    *OrderSyncer
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	netsuite := ecommerce.NewMemoryConnector(platform.CodeNetSuite)
	shopify := ecommerce.NewMemoryConnector(platform.CodeShopify)
	registry := ecommerce.NewStaticRegistry(netsuite, shopify)

	mappings := newMemMappingRepo()
	snapshots := &memSnapshotRepo{}
	audits := &memAuditRepo{}
	logger := zap.NewNop()

	snapSvc := appsnapshot.NewService(snapshots, newMemRestorePointRepo(), &memAlertRepo{}, logger)
	tracker := appaudit.NewTracker(audits, logger)

	converter := ecommerce.NewFixedRateConverter()
	converter.SetRate("USD", "EUR", mustDecimal("0.5"))

	currencies := map[platform.Code]string{
		platform.CodeNetSuite: "USD",
		platform.CodeShopify:  "EUR",
	}

	return &syncFixture{
		userID:    uuid.New(),
		netsuite:  netsuite,
		shopify:   shopify,
		mappings:  mappings,
		snapshots: snapshots,
		audits:    audits,
		products:  NewProductSyncer(registry, mappings, snapSvc, tracker, openGate{}, logger),
		inventory: NewInventorySyncer(registry, mappings, tracker, openGate{}, logger),
		orders:    NewOrderSyncer(registry, mappings, converter, tracker, openGate{}, currencies, logger),
	}
}
