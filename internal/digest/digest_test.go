package digest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/logger"
	"github.com/zulandar/shopclock/internal/models"
	"github.com/zulandar/shopclock/internal/notify"
	"github.com/zulandar/shopclock/internal/report"
	"gorm.io/gorm"
)

var today = time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

type captureSender struct {
	msgs []notify.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func seedDay(t *testing.T, gdb *gorm.DB) {
	t.Helper()
	start := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	total := int64(300)
	realized := 2
	recs := []any{
		&models.Process{ID: "p1", Name: "Costura", Active: true},
		&models.Operator{ID: "o1", Name: "Ana", Badge: "A1", Active: true},
		&models.WorkOrder{ID: "w1", Code: "OF-1", Reference: "R", Quantity: 10, Status: models.WorkOrderOpen},
		&models.Activity{ID: "a1", OperatorID: "o1", ProcessID: "p1", WorkOrderID: "w1", PlannedQty: 2,
			Status: models.StatusFinished, PiecesDone: 2, StartedAt: start, EndedAt: &end,
			RealizedQty: &realized, TotalElapsedSec: &total},
		&models.PieceRecord{ID: "k1", ActivityID: "a1", Sequence: 1, CumulativeSec: 120, CompletedAt: start.Add(2 * time.Minute)},
		&models.PieceRecord{ID: "k2", ActivityID: "a1", Sequence: 2, CumulativeSec: 300, CompletedAt: end},
	}
	for _, r := range recs {
		if err := gdb.Create(r).Error; err != nil {
			t.Fatalf("seed %T: %v", r, err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	gdb := testDB(t)
	if _, err := New(gdb, Opts{Schedule: "0 18 * * *"}); err == nil || !strings.Contains(err.Error(), "sender is required") {
		t.Errorf("missing sender: err = %v", err)
	}
	if _, err := New(gdb, Opts{Schedule: "every day", Sender: &captureSender{}}); err == nil || !strings.Contains(err.Error(), "parse schedule") {
		t.Errorf("bad schedule: err = %v", err)
	}
}

func TestNew_NoLoggerStaysQuiet(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s, err := New(testDB(t), Opts{Schedule: "0 18 * * *", Sender: &captureSender{}, Now: func() time.Time { return today }})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Fire(context.Background()); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("default logger received output: %s", buf.String())
	}
}

func TestScheduler_Next(t *testing.T) {
	s, err := New(testDB(t), Opts{Schedule: "0 18 * * 1-5", Sender: &captureSender{}})
	if err != nil {
		t.Fatal(err)
	}
	// 2026-05-08 is a Friday; the next weekday 18:00 is Monday 2026-05-11.
	fri := time.Date(2026, 5, 8, 19, 0, 0, 0, time.UTC)
	want := time.Date(2026, 5, 11, 18, 0, 0, 0, time.UTC)
	if got := s.Next(fri); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestBuild_EmptyDay(t *testing.T) {
	msg, err := Build(context.Background(), testDB(t), today)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if msg != nil {
		t.Errorf("msg = %+v, want nil", msg)
	}
}

func TestBuild_ProductionDay(t *testing.T) {
	gdb := testDB(t)
	seedDay(t, gdb)
	msg, err := Build(context.Background(), gdb, today)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if msg == nil {
		t.Fatal("msg = nil, want digest")
	}
	if msg.Title != "Production digest 2026-05-04" {
		t.Errorf("Title = %q", msg.Title)
	}
	if !strings.Contains(msg.Body, "2 pieces by 1 operators across 1 processes") {
		t.Errorf("Body = %q", msg.Body)
	}
	if len(msg.Fields) != 1 || msg.Fields[0].Name != "Costura" {
		t.Fatalf("Fields = %+v", msg.Fields)
	}
	if !strings.HasPrefix(msg.Fields[0].Value, "2 pcs") {
		t.Errorf("field value = %q", msg.Fields[0].Value)
	}
}

func TestFire_SendsAndSkips(t *testing.T) {
	gdb := testDB(t)
	sender := &captureSender{}
	s, err := New(gdb, Opts{Schedule: "0 18 * * *", Sender: sender, Logger: logger.Discard(), Now: func() time.Time { return today }})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Fire(context.Background()); err != nil {
		t.Fatalf("Fire on empty day: %v", err)
	}
	if len(sender.msgs) != 0 {
		t.Fatalf("sent %d messages on empty day", len(sender.msgs))
	}

	seedDay(t, gdb)
	if err := s.Fire(context.Background()); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if len(sender.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.msgs))
	}
}

func TestFire_SendError(t *testing.T) {
	gdb := testDB(t)
	seedDay(t, gdb)
	sender := &captureSender{err: errors.New("webhook down")}
	s, _ := New(gdb, Opts{Schedule: "0 18 * * *", Sender: sender, Logger: logger.Discard(), Now: func() time.Time { return today }})
	err := s.Fire(context.Background())
	if err == nil || !strings.Contains(err.Error(), "digest: send") {
		t.Errorf("err = %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := New(testDB(t), Opts{Schedule: "0 18 * * *", Sender: &captureSender{}, Logger: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFormat_CapsProcessFields(t *testing.T) {
	ov := &report.Overview{Range: report.Day(today), Pieces: 20, Operators: 3, Processes: 10, MeanTPUMin: 2.5, PiecesPerHour: 24}
	pr := &report.ProcessReport{}
	for i := 0; i < 10; i++ {
		pr.Processes = append(pr.Processes, report.ProcessStats{Name: fmt.Sprintf("P%d", i), Pieces: 2, MeanTPUMin: 2.5})
	}
	msg := Format(ov, pr)
	if len(msg.Fields) != maxProcessFields+1 {
		t.Fatalf("len(Fields) = %d, want %d", len(msg.Fields), maxProcessFields+1)
	}
	last := msg.Fields[len(msg.Fields)-1]
	if last.Name != "Other" || last.Value != "2 more processes" {
		t.Errorf("last field = %+v", last)
	}
	if !strings.Contains(msg.Body, "Mean TPU 2.5 min, 24.0 pieces/hour") {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.Severity != notify.SeverityInfo {
		t.Errorf("Severity = %q", msg.Severity)
	}
}
