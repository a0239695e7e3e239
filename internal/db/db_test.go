package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/shopclock/internal/config"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { Close(gdb) })
	return gdb
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "shopclock_porto",
			want:     "root@tcp(127.0.0.1:3306)/shopclock_porto?parseTime=true",
		},
		{
			name:     "with password",
			user:     "shop",
			password: "secret",
			host:     "10.0.0.5",
			port:     3307,
			database: "chao",
			want:     "shop:secret@tcp(10.0.0.5:3307)/chao?parseTime=true",
		},
		{
			name: "admin without database",
			user: "root",
			host: "db.internal",
			port: 3306,
			want: "root@tcp(db.internal:3306)/?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.password, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "oracle"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestConnect_SQLite(t *testing.T) {
	gdb, err := Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer Close(gdb)
	if err := Ping(gdb); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestAutoMigrate_CreatesTables(t *testing.T) {
	gdb := openTestDB(t)
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
}

func TestSeedProcesses_Idempotent(t *testing.T) {
	gdb := openTestDB(t)
	procs := []config.ProcessConfig{
		{Name: "Costura", Sector: "costura"},
		{Name: "Estampagem", Sector: "estampas"},
	}
	if err := SeedProcesses(gdb, procs); err != nil {
		t.Fatalf("SeedProcesses: %v", err)
	}
	var first models.Process
	if err := gdb.Where("name = ?", "Costura").First(&first).Error; err != nil {
		t.Fatalf("load seeded process: %v", err)
	}

	procs[0].Sector = "acabamento"
	if err := SeedProcesses(gdb, procs); err != nil {
		t.Fatalf("SeedProcesses (second run): %v", err)
	}

	var count int64
	gdb.Model(&models.Process{}).Count(&count)
	if count != 2 {
		t.Errorf("process count = %d, want 2", count)
	}
	var again models.Process
	gdb.Where("name = ?", "Costura").First(&again)
	if again.ID != first.ID {
		t.Errorf("process ID changed on re-seed: %q -> %q", first.ID, again.ID)
	}
	if again.Sector != "acabamento" {
		t.Errorf("Sector = %q, want acabamento", again.Sector)
	}
	if !again.Active {
		t.Error("seeded process should be active")
	}
}

func TestSeedMachines_Upsert(t *testing.T) {
	gdb := openTestDB(t)
	if err := SeedMachines(gdb, []config.MachineConfig{{ID: 1, Name: "Bordadeira 1", Heads: 6}}); err != nil {
		t.Fatalf("SeedMachines: %v", err)
	}
	if err := SeedMachines(gdb, []config.MachineConfig{{ID: 1, Name: "Bordadeira 1", Heads: 12}}); err != nil {
		t.Fatalf("SeedMachines (second run): %v", err)
	}
	var m models.Machine
	if err := gdb.First(&m, 1).Error; err != nil {
		t.Fatalf("load machine: %v", err)
	}
	if m.Heads != 12 {
		t.Errorf("Heads = %d, want 12", m.Heads)
	}
	if m.Kind != models.MachineEmbroidery {
		t.Errorf("Kind = %q, want embroidery", m.Kind)
	}
	var heads int64
	gdb.Model(&models.MachineHead{}).Where("machine_id = ?", 1).Count(&heads)
	if heads != 12 {
		t.Errorf("head rows = %d, want 12", heads)
	}
}

func TestSyncHeads_ShrinkKeepsExistingState(t *testing.T) {
	gdb := openTestDB(t)
	if err := SeedMachines(gdb, []config.MachineConfig{{ID: 2, Name: "DTF", Kind: "dtf", Heads: 4}}); err != nil {
		t.Fatalf("SeedMachines: %v", err)
	}
	gdb.Model(&models.MachineHead{}).Where("machine_id = ? AND number = ?", 2, 1).
		Updates(map[string]any{"status": models.HeadStatusProblem, "problem_count": 2})

	if err := SyncHeads(gdb, 2, 2); err != nil {
		t.Fatalf("SyncHeads: %v", err)
	}
	var heads []models.MachineHead
	gdb.Where("machine_id = ?", 2).Order("number").Find(&heads)
	if len(heads) != 2 {
		t.Fatalf("heads = %d, want 2", len(heads))
	}
	if heads[0].Status != models.HeadStatusProblem || heads[0].ProblemCount != 2 {
		t.Errorf("head 1 = %+v, want status problem with 2 problems kept", heads[0])
	}
	if heads[1].Status != models.HeadOK {
		t.Errorf("head 2 status = %q, want ok", heads[1].Status)
	}
}

func TestIsDuplicate_SQLiteUniqueIndex(t *testing.T) {
	gdb := openTestDB(t)
	op := models.Operator{ID: "op-1", Name: "Ana", Badge: "1001", Active: true}
	if err := gdb.Create(&op).Error; err != nil {
		t.Fatalf("create operator: %v", err)
	}
	dup := models.Operator{ID: "op-2", Name: "Ana B", Badge: "1001", Active: true}
	err := gdb.Create(&dup).Error
	if err == nil {
		t.Fatal("expected unique violation on badge")
	}
	if !IsDuplicate(err) {
		t.Errorf("IsDuplicate(%v) = false, want true", err)
	}
}

func TestIsDuplicate_MySQLErrorCode(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), gormConfig())
	if err != nil {
		t.Fatalf("open gorm over sqlmock: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `open_sessions`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'op-1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	err = gdb.Create(&models.OpenSession{OperatorID: "op-1", ActivityID: "act-1"}).Error
	if err == nil {
		t.Fatal("expected duplicate error")
	}
	if !IsDuplicate(err) {
		t.Errorf("IsDuplicate(%v) = false, want true", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestIsDuplicate_Other(t *testing.T) {
	if IsDuplicate(nil) {
		t.Error("IsDuplicate(nil) = true")
	}
	if IsDuplicate(errors.New("connection refused")) {
		t.Error("IsDuplicate(connection refused) = true")
	}
	if IsDuplicate(&mysqldrv.MySQLError{Number: 1045, Message: "Access denied"}) {
		t.Error("IsDuplicate(access denied) = true")
	}
	if !IsDuplicate(&mysqldrv.MySQLError{Number: 1062}) {
		t.Error("IsDuplicate(raw 1062) = false")
	}
}

func TestIsNotFound(t *testing.T) {
	gdb := openTestDB(t)
	var op models.Operator
	err := gdb.Where("id = ?", "missing").First(&op).Error
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
	if IsNotFound(errors.New("boom")) {
		t.Error("IsNotFound(boom) = true")
	}
}
