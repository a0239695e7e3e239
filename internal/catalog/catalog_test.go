package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

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

func TestCreateOperator(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)

	op, err := CreateOperator(ctx, gdb, OperatorOpts{Name: " Ana ", Badge: " a001", PIN: "123456"})
	if err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	if op.Badge != "A001" {
		t.Errorf("Badge = %q, want A001", op.Badge)
	}
	if op.Name != "Ana" || op.Role != models.RoleOperator || !op.Active {
		t.Errorf("operator = %+v", op)
	}
	if op.PINHash == "" || op.PINHash == "123456" {
		t.Errorf("PINHash = %q, want bcrypt hash", op.PINHash)
	}

	_, err = CreateOperator(ctx, gdb, OperatorOpts{Name: "Other", Badge: "A001"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate badge: err = %v, want ErrDuplicate", err)
	}
}

func TestCreateOperator_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts OperatorOpts
		want string
	}{
		{"no name", OperatorOpts{Badge: "B"}, "name is required"},
		{"no badge", OperatorOpts{Name: "N"}, "badge is required"},
		{"bad role", OperatorOpts{Name: "N", Badge: "B", Role: "boss"}, `role "boss" is not valid`},
		{"short pin", OperatorOpts{Name: "N", Badge: "B", PIN: "1234"}, "exactly 6 digits"},
		{"alpha pin", OperatorOpts{Name: "N", Badge: "B", PIN: "abcdef"}, "numeric"},
	}
	gdb := testDB(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateOperator(context.Background(), gdb, tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestIdentify(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	if _, err := CreateOperator(ctx, gdb, OperatorOpts{Name: "Ana", Badge: "A001", PIN: "123456"}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateOperator(ctx, gdb, OperatorOpts{Name: "Rui", Badge: "R001"}); err != nil {
		t.Fatal(err)
	}

	op, err := Identify(ctx, gdb, "a001", "123456")
	if err != nil || op.Name != "Ana" {
		t.Fatalf("Identify = %+v, %v", op, err)
	}
	if _, err := Identify(ctx, gdb, "A001", "999999"); !errors.Is(err, ErrInvalidPIN) {
		t.Errorf("wrong pin: err = %v", err)
	}
	if _, err := Identify(ctx, gdb, "R001", ""); !errors.Is(err, ErrInvalidPIN) {
		t.Errorf("no pin set: err = %v", err)
	}
	if _, err := Identify(ctx, gdb, "Z999", "123456"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown badge: err = %v", err)
	}

	if err := SetPIN(ctx, gdb, "A001", "567890"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	if _, err := Identify(ctx, gdb, "A001", "567890"); err != nil {
		t.Errorf("new pin rejected: %v", err)
	}
	if err := SetOperatorActive(ctx, gdb, "A001", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := Identify(ctx, gdb, "A001", "567890"); !errors.Is(err, ErrInvalidPIN) {
		t.Errorf("inactive operator: err = %v", err)
	}
}

func TestSetPIN_UnknownBadge(t *testing.T) {
	if err := SetPIN(context.Background(), testDB(t), "nobody", "123456"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListOperators(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	for _, o := range []OperatorOpts{{Name: "Rui", Badge: "R1"}, {Name: "Ana", Badge: "A1"}} {
		if _, err := CreateOperator(ctx, gdb, o); err != nil {
			t.Fatal(err)
		}
	}
	if err := SetOperatorActive(ctx, gdb, "R1", false); err != nil {
		t.Fatal(err)
	}
	active, err := ListOperators(ctx, gdb, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Name != "Ana" {
		t.Errorf("active = %+v", active)
	}
	all, _ := ListOperators(ctx, gdb, true)
	if len(all) != 2 || all[0].Name != "Ana" {
		t.Errorf("all = %+v", all)
	}
	if err := SetOperatorActive(ctx, gdb, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown badge: err = %v", err)
	}
}

func TestProcesses(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	if _, err := CreateProcess(ctx, gdb, "Estampagem", "estampas"); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateProcess(ctx, gdb, "Costura", "costura"); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateProcess(ctx, gdb, "Costura", "x"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate: err = %v", err)
	}
	if _, err := CreateProcess(ctx, gdb, "  ", ""); err == nil {
		t.Error("expected error for empty name")
	}
	ps, err := ListProcesses(ctx, gdb, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 2 || ps[0].Name != "Costura" {
		t.Errorf("processes = %+v", ps)
	}
}

func TestWorkOrders(t *testing.T) {
	ctx := context.Background()
	gdb := testDB(t)
	wo, err := CreateWorkOrder(ctx, gdb, WorkOrderOpts{Code: "OF-1", Reference: "REF-A", Quantity: 50})
	if err != nil {
		t.Fatalf("CreateWorkOrder: %v", err)
	}
	if wo.Status != models.WorkOrderOpen {
		t.Errorf("Status = %q", wo.Status)
	}
	if _, err := CreateWorkOrder(ctx, gdb, WorkOrderOpts{Code: "OF-1"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate: err = %v", err)
	}
	if _, err := CreateWorkOrder(ctx, gdb, WorkOrderOpts{Code: "OF-2", Quantity: -1}); err == nil {
		t.Error("expected error for negative quantity")
	}

	byCode, err := GetWorkOrder(ctx, gdb, "OF-1")
	if err != nil || byCode.ID != wo.ID {
		t.Fatalf("GetWorkOrder by code = %+v, %v", byCode, err)
	}
	if _, err := GetWorkOrder(ctx, gdb, "OF-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}

	if err := SetWorkOrderStatus(ctx, gdb, "OF-1", models.WorkOrderCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := SetWorkOrderStatus(ctx, gdb, "OF-1", models.WorkOrderInProgress); err == nil || !strings.Contains(err.Error(), "invalid status transition") {
		t.Errorf("completed->in_progress: err = %v", err)
	}
	if err := SetWorkOrderStatus(ctx, gdb, wo.ID, models.WorkOrderOpen); err != nil {
		t.Errorf("reopen: %v", err)
	}

	if _, err := CreateWorkOrder(ctx, gdb, WorkOrderOpts{Code: "OF-2", Reference: "REF-B"}); err != nil {
		t.Fatal(err)
	}
	open, err := ListWorkOrders(ctx, gdb, WorkOrderFilters{Reference: "REF-B"})
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].Code != "OF-2" {
		t.Errorf("by reference = %+v", open)
	}
	all, _ := ListWorkOrders(ctx, gdb, WorkOrderFilters{Status: models.WorkOrderOpen})
	if len(all) != 2 {
		t.Errorf("open work orders = %d, want 2", len(all))
	}
}
