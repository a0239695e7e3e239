package activity

import (
	"context"
	"strings"
	"time"

	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// Current returns the operator's open activity with its operator, process
// and work order loaded, or nil when the operator has none.
func (e *Engine) Current(ctx context.Context, operatorID string) (*models.Activity, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, invalidArg("operator id is required")
	}
	var list []models.Activity
	err := e.db.WithContext(ctx).
		Preload("Operator").Preload("Process").Preload("WorkOrder").Preload("Machine").
		Where("operator_id = ? AND status IN ?", operatorID, openStatuses).
		Order("started_at DESC").Limit(1).
		Find(&list).Error
	if err != nil {
		return nil, storeErr("lookup current activity", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// Pieces returns the activity's registered pieces ordered by sequence, each
// with its individual duration.
func (e *Engine) Pieces(ctx context.Context, activityID string) ([]PieceDuration, error) {
	if strings.TrimSpace(activityID) == "" {
		return nil, invalidArg("activity id is required")
	}
	if _, err := e.load(ctx, activityID); err != nil {
		return nil, err
	}
	var pieces []models.PieceRecord
	if err := e.db.WithContext(ctx).Where("activity_id = ?", activityID).
		Order("sequence").Find(&pieces).Error; err != nil {
		return nil, storeErr("list pieces", err)
	}
	return IndividualDurations(pieces), nil
}

// Get returns one activity with its relations and pieces loaded.
func (e *Engine) Get(ctx context.Context, id string) (*models.Activity, error) {
	var a models.Activity
	err := e.db.WithContext(ctx).
		Preload("Operator").Preload("Process").Preload("WorkOrder").Preload("Machine").
		Preload("Pieces", func(tx *gorm.DB) *gorm.DB { return tx.Order("sequence") }).
		Where("id = ?", id).First(&a).Error
	if err != nil {
		return nil, lookupErr(err, MsgActivityNotFound)
	}
	return &a, nil
}

// ListFilter narrows List results. Zero fields are ignored.
type ListFilter struct {
	OperatorID  string
	ProcessID   string
	WorkOrderID string
	Status      string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// List returns activities matching f, newest first.
func (e *Engine) List(ctx context.Context, f ListFilter) ([]models.Activity, error) {
	q := e.db.WithContext(ctx).Preload("Operator").Preload("Process").Preload("WorkOrder")
	if f.OperatorID != "" {
		q = q.Where("operator_id = ?", f.OperatorID)
	}
	if f.ProcessID != "" {
		q = q.Where("process_id = ?", f.ProcessID)
	}
	if f.WorkOrderID != "" {
		q = q.Where("work_order_id = ?", f.WorkOrderID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.Since.IsZero() {
		q = q.Where("started_at >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("started_at < ?", f.Until)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var list []models.Activity
	if err := q.Order("started_at DESC").Find(&list).Error; err != nil {
		return nil, storeErr("list activities", err)
	}
	return list, nil
}
