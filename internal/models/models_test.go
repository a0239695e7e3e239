package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestActivity_Fields(t *testing.T) {
	typ := reflect.TypeOf(Activity{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "OperatorID", "not null")
	assertGormTag(t, typ, "OperatorID", "index")
	assertGormTag(t, typ, "ProcessID", "index")
	assertGormTag(t, typ, "WorkOrderID", "index")
	assertGormTag(t, typ, "HeadsInUse", "type:json")
	assertGormTag(t, typ, "PlannedQty", "not null")
	assertGormTag(t, typ, "Status", "size:16")
	assertGormTag(t, typ, "Status", "default:active")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "InProgress", "index")
	assertGormTag(t, typ, "Pauses", "type:json")
	assertGormTag(t, typ, "StartedAt", "not null")

	assertFieldType(t, typ, "MachineID", "*uint")
	assertFieldType(t, typ, "RealizedQty", "*int")
	assertFieldType(t, typ, "ScrapReason", "*string")
	assertFieldType(t, typ, "StartedAt", "time.Time")
	assertFieldType(t, typ, "EndedAt", "*time.Time")
	assertFieldType(t, typ, "TotalElapsedSec", "*int64")
	assertFieldType(t, typ, "TimePerUnitSec", "*float64")
}

func TestActivity_Relations(t *testing.T) {
	typ := reflect.TypeOf(Activity{})

	assertGormTag(t, typ, "Operator", "foreignKey:OperatorID")
	assertGormTag(t, typ, "Process", "foreignKey:ProcessID")
	assertGormTag(t, typ, "WorkOrder", "foreignKey:WorkOrderID")
	assertGormTag(t, typ, "Machine", "foreignKey:MachineID")
	assertGormTag(t, typ, "Pieces", "foreignKey:ActivityID")

	assertFieldType(t, typ, "Operator", "*models.Operator")
	assertFieldType(t, typ, "Pieces", "[]models.PieceRecord")
}

func TestPieceRecord_Fields(t *testing.T) {
	typ := reflect.TypeOf(PieceRecord{})

	// Composite unique index guards against duplicate piece numbers.
	assertGormTag(t, typ, "ActivityID", "uniqueIndex:idx_piece_activity_seq,priority:1")
	assertGormTag(t, typ, "Sequence", "uniqueIndex:idx_piece_activity_seq,priority:2")
	assertGormTag(t, typ, "CumulativeSec", "not null")

	assertFieldType(t, typ, "CumulativeSec", "int64")
	assertFieldType(t, typ, "CompletedAt", "time.Time")
}

func TestOpenSession_Fields(t *testing.T) {
	typ := reflect.TypeOf(OpenSession{})

	assertGormTag(t, typ, "OperatorID", "primaryKey")
	assertGormTag(t, typ, "ActivityID", "uniqueIndex")
}

func TestCatalog_Fields(t *testing.T) {
	assertGormTag(t, reflect.TypeOf(Operator{}), "Badge", "uniqueIndex")
	assertGormTag(t, reflect.TypeOf(Operator{}), "Role", "default:operator")
	assertGormTag(t, reflect.TypeOf(Process{}), "Name", "uniqueIndex")
	assertGormTag(t, reflect.TypeOf(WorkOrder{}), "Code", "uniqueIndex")
	assertGormTag(t, reflect.TypeOf(WorkOrder{}), "Status", "default:open")
	assertGormTag(t, reflect.TypeOf(Machine{}), "Name", "uniqueIndex")

	assertFieldType(t, reflect.TypeOf(Machine{}), "ID", "uint")
}

func TestActivity_Open(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusActive, true},
		{StatusPaused, true},
		{StatusFinished, false},
		{StatusAnomalous, false},
	}
	for _, tt := range tests {
		a := Activity{Status: tt.status}
		if got := a.Open(); got != tt.want {
			t.Errorf("Activity{Status: %q}.Open() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestActivity_OpenPause(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	var a Activity
	if got := a.OpenPause(); got != -1 {
		t.Errorf("no pauses: OpenPause() = %d, want -1", got)
	}

	a.Pauses = append(a.Pauses, Pause{Start: t0, End: &t1})
	if got := a.OpenPause(); got != -1 {
		t.Errorf("closed pause: OpenPause() = %d, want -1", got)
	}

	a.Pauses = append(a.Pauses, Pause{Start: t1})
	if got := a.OpenPause(); got != 1 {
		t.Errorf("open pause: OpenPause() = %d, want 1", got)
	}
}
