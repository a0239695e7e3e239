package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/zulandar/shopclock/internal/config"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Operator{},
		&models.Process{},
		&models.WorkOrder{},
		&models.Machine{},
		&models.MachineHead{},
		&models.Activity{},
		&models.PieceRecord{},
		&models.OpenSession{},
		&models.HeadProblem{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedProcesses inserts configured processes that don't exist yet and
// updates the sector of those that do. Existing IDs are preserved.
func SeedProcesses(db *gorm.DB, processes []config.ProcessConfig) error {
	for _, pc := range processes {
		p := models.Process{
			ID:     uuid.NewString(),
			Name:   pc.Name,
			Sector: pc.Sector,
			Active: true,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"sector"}),
		}).Create(&p)
		if result.Error != nil {
			return fmt.Errorf("db: seed process %q: %w", pc.Name, result.Error)
		}
	}
	return nil
}

// SeedMachines upserts Machine rows from configuration and keeps one
// MachineHead row per configured head.
func SeedMachines(db *gorm.DB, machines []config.MachineConfig) error {
	for _, mc := range machines {
		m := models.Machine{
			ID:     mc.ID,
			Name:   mc.Name,
			Kind:   mc.Kind,
			Heads:  mc.Heads,
			Active: true,
		}
		if m.Kind == "" {
			m.Kind = models.MachineEmbroidery
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "kind", "heads"}),
			}).Create(&m)
			if result.Error != nil {
				return result.Error
			}
			return SyncHeads(tx, m.ID, m.Heads)
		})
		if err != nil {
			return fmt.Errorf("db: seed machine %q: %w", mc.Name, err)
		}
	}
	return nil
}

// SyncHeads makes sure machine has head rows 1..n and removes any above n.
// Existing rows keep their status and counters.
func SyncHeads(db *gorm.DB, machineID uint, n int) error {
	heads := make([]models.MachineHead, 0, n)
	for i := 1; i <= n; i++ {
		heads = append(heads, models.MachineHead{MachineID: machineID, Number: i, Status: models.HeadOK})
	}
	if len(heads) > 0 {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "machine_id"}, {Name: "number"}},
			DoNothing: true,
		}).Create(&heads).Error
		if err != nil {
			return err
		}
	}
	return db.Where("machine_id = ? AND number > ?", machineID, n).Delete(&models.MachineHead{}).Error
}
