// Package catalog manages the reference data activities point at:
// operators, processes, work orders and machines.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique name, badge or code is taken.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidPIN is returned when a PIN does not match or is malformed.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrInUse is returned when a row cannot be removed because activities
	// reference it.
	ErrInUse = errors.New("in use")
)

// PINLength is the number of digits in an operator PIN.
const PINLength = 6

// ValidTransitions maps each work order status to its valid next statuses.
var ValidTransitions = map[string][]string{
	models.WorkOrderOpen:       {models.WorkOrderInProgress, models.WorkOrderCompleted},
	models.WorkOrderInProgress: {models.WorkOrderOpen, models.WorkOrderCompleted},
	models.WorkOrderCompleted:  {models.WorkOrderOpen},
}

// OperatorOpts holds parameters for creating an operator.
type OperatorOpts struct {
	Name  string
	Badge string
	Role  string // operator, supervisor, admin
	PIN   string // optional
}

// WorkOrderOpts holds parameters for creating a work order.
type WorkOrderOpts struct {
	Code        string
	Reference   string
	Description string
	Quantity    int
}

// WorkOrderFilters holds optional filters for listing work orders.
type WorkOrderFilters struct {
	Status    string
	Reference string
}

func createErr(what string, err error) error {
	if db.IsDuplicate(err) {
		return fmt.Errorf("catalog: %s: %w", what, ErrDuplicate)
	}
	return fmt.Errorf("catalog: create %s: %w", what, err)
}

// CreateOperator adds an active operator.
func CreateOperator(ctx context.Context, gdb *gorm.DB, opts OperatorOpts) (*models.Operator, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	opts.Badge = normalizeBadge(opts.Badge)
	if opts.Name == "" {
		return nil, fmt.Errorf("catalog: operator name is required")
	}
	if opts.Badge == "" {
		return nil, fmt.Errorf("catalog: operator badge is required")
	}
	switch opts.Role {
	case "":
		opts.Role = models.RoleOperator
	case models.RoleOperator, models.RoleSupervisor, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("catalog: role %q is not valid (operator, supervisor, admin)", opts.Role)
	}

	op := models.Operator{
		ID:     uuid.NewString(),
		Name:   opts.Name,
		Badge:  opts.Badge,
		Role:   opts.Role,
		Active: true,
	}
	if opts.PIN != "" {
		hash, err := hashPIN(opts.PIN)
		if err != nil {
			return nil, err
		}
		op.PINHash = hash
	}
	if err := gdb.WithContext(ctx).Create(&op).Error; err != nil {
		return nil, createErr("operator "+opts.Badge, err)
	}
	return &op, nil
}

// normalizeBadge trims and upper-cases a badge; badges are stored upper-case.
func normalizeBadge(badge string) string {
	return strings.ToUpper(strings.TrimSpace(badge))
}

// GetOperatorByBadge looks an operator up by badge, case-insensitively.
func GetOperatorByBadge(ctx context.Context, gdb *gorm.DB, badge string) (*models.Operator, error) {
	badge = normalizeBadge(badge)
	var op models.Operator
	if err := gdb.WithContext(ctx).Where("badge = ?", badge).First(&op).Error; err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("catalog: operator %s: %w", badge, ErrNotFound)
		}
		return nil, fmt.Errorf("catalog: get operator %s: %w", badge, err)
	}
	return &op, nil
}

// ListOperators returns operators ordered by name. Inactive operators are
// included only when all is true.
func ListOperators(ctx context.Context, gdb *gorm.DB, all bool) ([]models.Operator, error) {
	q := gdb.WithContext(ctx).Order("name ASC")
	if !all {
		q = q.Where("active = ?", true)
	}
	var ops []models.Operator
	if err := q.Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("catalog: list operators: %w", err)
	}
	return ops, nil
}

// SetOperatorActive enables or disables the operator with the given badge.
func SetOperatorActive(ctx context.Context, gdb *gorm.DB, badge string, active bool) error {
	badge = normalizeBadge(badge)
	res := gdb.WithContext(ctx).Model(&models.Operator{}).Where("badge = ?", badge).Update("active", active)
	if res.Error != nil {
		return fmt.Errorf("catalog: update operator %s: %w", badge, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("catalog: operator %s: %w", badge, ErrNotFound)
	}
	return nil
}

// SetPIN replaces an operator's PIN.
func SetPIN(ctx context.Context, gdb *gorm.DB, badge, pin string) error {
	badge = normalizeBadge(badge)
	hash, err := hashPIN(pin)
	if err != nil {
		return err
	}
	res := gdb.WithContext(ctx).Model(&models.Operator{}).Where("badge = ?", badge).Update("pin_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("catalog: set pin for %s: %w", badge, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("catalog: operator %s: %w", badge, ErrNotFound)
	}
	return nil
}

// Identify returns the active operator with the given badge when pin
// matches. Operators without a PIN cannot be identified.
func Identify(ctx context.Context, gdb *gorm.DB, badge, pin string) (*models.Operator, error) {
	op, err := GetOperatorByBadge(ctx, gdb, badge)
	if err != nil {
		return nil, err
	}
	if !op.Active {
		return nil, fmt.Errorf("catalog: operator %s is inactive: %w", badge, ErrInvalidPIN)
	}
	if op.PINHash == "" || bcrypt.CompareHashAndPassword([]byte(op.PINHash), []byte(pin)) != nil {
		return nil, fmt.Errorf("catalog: operator %s: %w", badge, ErrInvalidPIN)
	}
	return op, nil
}

func hashPIN(pin string) (string, error) {
	if len(pin) != PINLength {
		return "", fmt.Errorf("catalog: pin must have exactly %d digits: %w", PINLength, ErrInvalidPIN)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("catalog: pin must be numeric: %w", ErrInvalidPIN)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("catalog: hash pin: %w", err)
	}
	return string(hash), nil
}

// CreateProcess adds an active process.
func CreateProcess(ctx context.Context, gdb *gorm.DB, name, sector string) (*models.Process, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("catalog: process name is required")
	}
	p := models.Process{ID: uuid.NewString(), Name: name, Sector: strings.TrimSpace(sector), Active: true}
	if err := gdb.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, createErr("process "+name, err)
	}
	return &p, nil
}

// ListProcesses returns processes ordered by sector then name.
func ListProcesses(ctx context.Context, gdb *gorm.DB, all bool) ([]models.Process, error) {
	q := gdb.WithContext(ctx).Order("sector ASC, name ASC")
	if !all {
		q = q.Where("active = ?", true)
	}
	var ps []models.Process
	if err := q.Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("catalog: list processes: %w", err)
	}
	return ps, nil
}

// CreateWorkOrder adds an open work order.
func CreateWorkOrder(ctx context.Context, gdb *gorm.DB, opts WorkOrderOpts) (*models.WorkOrder, error) {
	opts.Code = strings.TrimSpace(opts.Code)
	if opts.Code == "" {
		return nil, fmt.Errorf("catalog: work order code is required")
	}
	if opts.Quantity < 0 {
		return nil, fmt.Errorf("catalog: work order quantity must be >= 0")
	}
	wo := models.WorkOrder{
		ID:          uuid.NewString(),
		Code:        opts.Code,
		Reference:   strings.TrimSpace(opts.Reference),
		Description: opts.Description,
		Quantity:    opts.Quantity,
		Status:      models.WorkOrderOpen,
	}
	if err := gdb.WithContext(ctx).Create(&wo).Error; err != nil {
		return nil, createErr("work order "+opts.Code, err)
	}
	return &wo, nil
}

// GetWorkOrder looks a work order up by id or code.
func GetWorkOrder(ctx context.Context, gdb *gorm.DB, idOrCode string) (*models.WorkOrder, error) {
	var wo models.WorkOrder
	err := gdb.WithContext(ctx).Where("id = ? OR code = ?", idOrCode, idOrCode).First(&wo).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("catalog: work order %s: %w", idOrCode, ErrNotFound)
		}
		return nil, fmt.Errorf("catalog: get work order %s: %w", idOrCode, err)
	}
	return &wo, nil
}

// ListWorkOrders returns work orders matching filters, newest first.
func ListWorkOrders(ctx context.Context, gdb *gorm.DB, filters WorkOrderFilters) ([]models.WorkOrder, error) {
	q := gdb.WithContext(ctx).Model(&models.WorkOrder{})
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Reference != "" {
		q = q.Where("reference = ?", filters.Reference)
	}
	var wos []models.WorkOrder
	if err := q.Order("created_at DESC, code ASC").Find(&wos).Error; err != nil {
		return nil, fmt.Errorf("catalog: list work orders: %w", err)
	}
	return wos, nil
}

// SetWorkOrderStatus moves a work order to status, validated against
// ValidTransitions.
func SetWorkOrderStatus(ctx context.Context, gdb *gorm.DB, idOrCode, status string) error {
	wo, err := GetWorkOrder(ctx, gdb, idOrCode)
	if err != nil {
		return err
	}
	if wo.Status == status {
		return nil
	}
	if !isValidTransition(wo.Status, status) {
		return fmt.Errorf("catalog: invalid status transition from %q to %q; valid transitions: %v",
			wo.Status, status, ValidTransitions[wo.Status])
	}
	if err := gdb.WithContext(ctx).Model(&models.WorkOrder{}).Where("id = ?", wo.ID).Update("status", status).Error; err != nil {
		return fmt.Errorf("catalog: update work order %s: %w", wo.Code, err)
	}
	return nil
}

func isValidTransition(from, to string) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}
