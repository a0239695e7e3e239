package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentNote struct{ subject, body string }

type fakeNotifier struct {
	mu    sync.Mutex
	notes []sentNote
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, sentNote{subject, body})
	return n.err
}

type fakeRecorder struct {
	started, pieces, paused, resumed, finished int
	lastTPU                                    *TPU
}

func (r *fakeRecorder) Started(context.Context, *models.Activity) { r.started++ }
func (r *fakeRecorder) PieceRegistered(context.Context, *models.Activity, int64) {
	r.pieces++
}
func (r *fakeRecorder) Paused(context.Context, *models.Activity)  { r.paused++ }
func (r *fakeRecorder) Resumed(context.Context, *models.Activity) { r.resumed++ }
func (r *fakeRecorder) Finished(_ context.Context, _ *models.Activity, t *TPU) {
	r.finished++
	r.lastTPU = t
}

type fixture struct {
	db       *gorm.DB
	clock    *fakeClock
	notifier *fakeNotifier
	engine   *Engine
	operator models.Operator
	process  models.Process
	order    models.WorkOrder
	machine  models.Machine
}

func newFixture(t *testing.T, limits Limits) *fixture {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })

	f := &fixture{
		db:       gdb,
		clock:    &fakeClock{now: t0},
		notifier: &fakeNotifier{},
		operator: models.Operator{ID: "op-1", Name: "Ana", Badge: "A001", Role: models.RoleOperator, Active: true},
		process:  models.Process{ID: "proc-1", Name: "Costura", Sector: "costura", Active: true},
		order:    models.WorkOrder{ID: "of-1", Code: "OF-1001", Quantity: 100, Status: models.WorkOrderOpen},
		machine:  models.Machine{ID: 1, Name: "Bordadeira 1", Heads: 6, Active: true},
	}
	for _, rec := range []any{&f.operator, &f.process, &f.order, &f.machine} {
		if err := gdb.Create(rec).Error; err != nil {
			t.Fatalf("seed %T: %v", rec, err)
		}
	}
	if err := db.SyncHeads(gdb, f.machine.ID, f.machine.Heads); err != nil {
		t.Fatalf("seed heads: %v", err)
	}
	f.engine = New(gdb, Options{Clock: f.clock, Limits: limits, Notifier: f.notifier})
	return f
}

func (f *fixture) start(t *testing.T, planned int) *models.Activity {
	t.Helper()
	a, err := f.engine.Start(context.Background(), StartCmd{
		OperatorID:  f.operator.ID,
		ProcessID:   f.process.ID,
		WorkOrderID: f.order.ID,
		PlannedQty:  planned,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func (f *fixture) reload(t *testing.T, id string) models.Activity {
	t.Helper()
	var a models.Activity
	if err := f.db.Where("id = ?", id).First(&a).Error; err != nil {
		t.Fatalf("reload activity %s: %v", id, err)
	}
	return a
}

func (f *fixture) countOpen(t *testing.T, operatorID string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&models.Activity{}).
		Where("operator_id = ? AND status IN ?", operatorID, openStatuses).
		Count(&n).Error; err != nil {
		t.Fatalf("count open: %v", err)
	}
	return n
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}

func TestNew_Defaults(t *testing.T) {
	e := New(nil, Options{})
	if e.clock == nil || e.log == nil || e.rec == nil {
		t.Fatal("New left nil collaborators")
	}
	l := e.Limits()
	if l.AnomalyThreshold != 24*time.Hour {
		t.Errorf("AnomalyThreshold = %v, want 24h", l.AnomalyThreshold)
	}
	if l.RealizedCapRatio != 1.5 {
		t.Errorf("RealizedCapRatio = %v, want 1.5", l.RealizedCapRatio)
	}
}

func TestEngine_NowTruncatesToSeconds(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 999_000_000, time.FixedZone("WET", 3600))}
	e := New(nil, Options{Clock: c})
	got := e.now()
	want := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("now() = %v, want %v", got, want)
	}
}

func TestError_MessageAndKind(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&Error{Kind: ErrStore, Msg: "finish activity", Err: cause})
	if !errors.Is(err, ErrStore) {
		t.Error("errors.Is(err, ErrStore) = false")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("errors.Is(err, ErrConflict) = true")
	}
	if !errors.Is(err, cause) {
		t.Error("error does not unwrap to its cause")
	}
	if got := err.Error(); got != "activity: finish activity: disk full" {
		t.Errorf("Error() = %q", got)
	}
	if KindOf(err) != ErrStore {
		t.Errorf("KindOf = %v, want ErrStore", KindOf(err))
	}
	if KindOf(cause) != nil {
		t.Errorf("KindOf(plain) = %v, want nil", KindOf(cause))
	}

	detailed := &Error{Kind: ErrInvalidArgument, Msg: MsgRealizedExceedsCap, Detail: "realized 16, maximum 15"}
	if got := detailed.Error(); got != "activity: "+MsgRealizedExceedsCap+" (realized 16, maximum 15)" {
		t.Errorf("Error() = %q", got)
	}
}

// gateClock blocks its first Now call until release is closed, holding a
// transition between reading the activity and writing it back.
type gateClock struct {
	base    *fakeClock
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func newGateClock(base *fakeClock) *gateClock {
	return &gateClock{base: base, reached: make(chan struct{}), release: make(chan struct{})}
}

func (c *gateClock) Now() time.Time {
	c.once.Do(func() {
		close(c.reached)
		<-c.release
	})
	return c.base.Now()
}
