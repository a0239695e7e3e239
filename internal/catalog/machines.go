package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// ValidationError reports a malformed catalog request.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return "catalog: " + e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// MaxHeads bounds the head count of a single machine.
const MaxHeads = 64

// MachineOpts holds parameters for creating a machine. ID is optional; zero
// lets the database assign one.
type MachineOpts struct {
	ID    uint
	Name  string
	Kind  string // embroidery, dtf, press
	Heads int
}

// MachineFilters holds optional filters for listing machines.
type MachineFilters struct {
	All  bool // include inactive machines
	Kind string
}

func validKind(kind string) bool {
	switch kind {
	case models.MachineEmbroidery, models.MachineDTF, models.MachinePress:
		return true
	}
	return false
}

// CreateMachine adds an active machine together with its head rows.
func CreateMachine(ctx context.Context, gdb *gorm.DB, opts MachineOpts) (*models.Machine, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return nil, invalid("machine name is required")
	}
	if opts.Kind == "" {
		opts.Kind = models.MachineEmbroidery
	}
	if !validKind(opts.Kind) {
		return nil, invalid("machine kind %q is not valid (embroidery, dtf, press)", opts.Kind)
	}
	if opts.Heads == 0 {
		opts.Heads = 1
	}
	if opts.Heads < 1 || opts.Heads > MaxHeads {
		return nil, invalid("machine heads must be between 1 and %d", MaxHeads)
	}

	m := models.Machine{
		ID:     opts.ID,
		Name:   opts.Name,
		Kind:   opts.Kind,
		Heads:  opts.Heads,
		Active: true,
	}
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("HeadStates").Create(&m).Error; err != nil {
			return err
		}
		return db.SyncHeads(tx, m.ID, m.Heads)
	})
	if err != nil {
		return nil, createErr("machine "+opts.Name, err)
	}
	return GetMachine(ctx, gdb, m.ID)
}

// GetMachine returns a machine with its heads ordered by number.
func GetMachine(ctx context.Context, gdb *gorm.DB, id uint) (*models.Machine, error) {
	var m models.Machine
	err := gdb.WithContext(ctx).
		Preload("HeadStates", func(q *gorm.DB) *gorm.DB { return q.Order("number") }).
		First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("catalog: machine %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("catalog: get machine %d: %w", id, err)
	}
	return &m, nil
}

// ListMachines returns machines ordered by ID.
func ListMachines(ctx context.Context, gdb *gorm.DB, filters MachineFilters) ([]models.Machine, error) {
	q := gdb.WithContext(ctx).Order("id")
	if !filters.All {
		q = q.Where("active = ?", true)
	}
	if filters.Kind != "" {
		q = q.Where("kind = ?", filters.Kind)
	}
	var ms []models.Machine
	if err := q.Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("catalog: list machines: %w", err)
	}
	return ms, nil
}

// MachineUpdate holds the editable fields of a machine. Nil fields are left
// unchanged.
type MachineUpdate struct {
	Name  *string
	Heads *int
}

// UpdateMachine renames a machine or changes its head count. Shrinking
// removes the head rows above the new count; growing adds heads in ok
// status.
func UpdateMachine(ctx context.Context, gdb *gorm.DB, id uint, u MachineUpdate) (*models.Machine, error) {
	updates := map[string]any{}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, invalid("machine name is required")
		}
		updates["name"] = name
	}
	if u.Heads != nil {
		if *u.Heads < 1 || *u.Heads > MaxHeads {
			return nil, invalid("machine heads must be between 1 and %d", MaxHeads)
		}
		updates["heads"] = *u.Heads
	}
	if len(updates) == 0 {
		return GetMachine(ctx, gdb, id)
	}

	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Machine{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			if db.IsDuplicate(res.Error) {
				return fmt.Errorf("catalog: machine %d: %w", id, ErrDuplicate)
			}
			return fmt.Errorf("catalog: update machine %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("catalog: machine %d: %w", id, ErrNotFound)
		}
		if u.Heads != nil {
			if err := db.SyncHeads(tx, id, *u.Heads); err != nil {
				return fmt.Errorf("catalog: sync heads of machine %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GetMachine(ctx, gdb, id)
}

// SetMachineActive enables or disables a machine.
func SetMachineActive(ctx context.Context, gdb *gorm.DB, id uint, active bool) error {
	res := gdb.WithContext(ctx).Model(&models.Machine{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("catalog: update machine %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("catalog: machine %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMachine removes a machine that no activity or problem references.
// Machines with history should be disabled instead.
func DeleteMachine(ctx context.Context, gdb *gorm.DB, id uint) error {
	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Machine
		if err := tx.First(&m, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("catalog: machine %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("catalog: get machine %d: %w", id, err)
		}
		var refs int64
		if err := tx.Model(&models.Activity{}).Where("machine_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("catalog: count machine activities: %w", err)
		}
		if refs == 0 {
			if err := tx.Model(&models.HeadProblem{}).Where("machine_id = ?", id).Count(&refs).Error; err != nil {
				return fmt.Errorf("catalog: count machine problems: %w", err)
			}
		}
		if refs > 0 {
			return fmt.Errorf("catalog: machine %d has history: %w", id, ErrInUse)
		}
		if err := tx.Where("machine_id = ?", id).Delete(&models.MachineHead{}).Error; err != nil {
			return fmt.Errorf("catalog: delete machine heads: %w", err)
		}
		if err := tx.Delete(&m).Error; err != nil {
			return fmt.Errorf("catalog: delete machine %d: %w", id, err)
		}
		return nil
	})
}

// ListHeads returns the heads of a machine ordered by number.
func ListHeads(ctx context.Context, gdb *gorm.DB, machineID uint) ([]models.MachineHead, error) {
	m, err := GetMachine(ctx, gdb, machineID)
	if err != nil {
		return nil, err
	}
	return m.HeadStates, nil
}

// SetHeadStatus records a manual status change on one head. Moving a head
// to problem counts a problem of the given kind; maintenance and ok stamp
// the maintenance time.
func SetHeadStatus(ctx context.Context, gdb *gorm.DB, machineID uint, head int, status, problem string, now time.Time) (*models.MachineHead, error) {
	updates := map[string]any{"status": status}
	switch status {
	case models.HeadStatusProblem:
		problem = strings.TrimSpace(problem)
		if problem == "" {
			return nil, invalid("problem kind is required")
		}
		updates["last_problem"] = problem
		updates["problem_count"] = gorm.Expr("problem_count + 1")
	case models.HeadOK, models.HeadMaintenance:
		updates["last_maintenance"] = now.UTC()
	default:
		return nil, invalid("head status %q is not valid (ok, problem, maintenance)", status)
	}

	var h models.MachineHead
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.MachineHead{}).
			Where("machine_id = ? AND number = ?", machineID, head).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("catalog: update head %d/%d: %w", machineID, head, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("catalog: head %d of machine %d: %w", head, machineID, ErrNotFound)
		}
		return tx.Where("machine_id = ? AND number = ?", machineID, head).First(&h).Error
	})
	if err != nil {
		return nil, err
	}
	return &h, nil
}
