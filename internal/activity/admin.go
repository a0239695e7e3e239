package activity

import (
	"context"
	"strings"

	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// auditRecent is how many recent activities Audit returns.
const auditRecent = 20

// AuditReport is a diagnostic snapshot of one operator's activities.
type AuditReport struct {
	OperatorID   string            `json:"operator_id"`
	Recent       []models.Activity `json:"recent"`
	Counts       map[string]int64  `json:"counts"`
	InProgress   int64             `json:"in_progress"`
	Inconsistent []models.Activity `json:"inconsistent"`
}

// ForceCloseAll closes every open activity of an operator without computing
// metrics: status finished, zero realized and zero elapsed. It is the
// recovery path for sessions left open by lost devices. It returns the ids
// of the closed activities.
func (e *Engine) ForceCloseAll(ctx context.Context, operatorID string) ([]string, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, invalidArg("operator id is required")
	}
	now := e.now()
	var ids []string
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Activity{}).
			Where("operator_id = ? AND (in_progress = ? OR status IN ?)", operatorID, true, openStatuses).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Model(&models.Activity{}).Where("id IN ?", ids).Updates(map[string]any{
				"status":            models.StatusFinished,
				"in_progress":       false,
				"ended_at":          now,
				"realized_qty":      0,
				"total_elapsed_sec": 0,
				"time_per_unit_sec": nil,
				"version":           gorm.Expr("version + 1"),
			}).Error; err != nil {
				return err
			}
		}
		return tx.Where("operator_id = ?", operatorID).Delete(&models.OpenSession{}).Error
	})
	if err != nil {
		return nil, storeErr("force close activities", err)
	}
	if len(ids) > 0 {
		e.logger(ctx).Warn("activities force-closed", "operator_id", operatorID, "count", len(ids), "activity_ids", ids)
	}
	return ids, nil
}

// Audit reports the operator's recent activities, counts by status and rows
// whose in-progress flag disagrees with their status.
func (e *Engine) Audit(ctx context.Context, operatorID string) (*AuditReport, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, invalidArg("operator id is required")
	}
	g := e.db.WithContext(ctx)
	var op models.Operator
	if err := g.Where("id = ?", operatorID).First(&op).Error; err != nil {
		return nil, lookupErr(err, MsgOperatorNotFound)
	}

	r := &AuditReport{OperatorID: operatorID, Counts: map[string]int64{}}
	if err := g.Preload("Process").Preload("WorkOrder").
		Where("operator_id = ?", operatorID).
		Order("started_at DESC").Limit(auditRecent).
		Find(&r.Recent).Error; err != nil {
		return nil, storeErr("audit recent", err)
	}

	var rows []struct {
		Status string
		N      int64
	}
	if err := g.Model(&models.Activity{}).Select("status, COUNT(*) AS n").
		Where("operator_id = ?", operatorID).Group("status").
		Scan(&rows).Error; err != nil {
		return nil, storeErr("audit counts", err)
	}
	for _, row := range rows {
		r.Counts[row.Status] = row.N
	}

	if err := g.Model(&models.Activity{}).
		Where("operator_id = ? AND in_progress = ?", operatorID, true).
		Count(&r.InProgress).Error; err != nil {
		return nil, storeErr("audit in progress", err)
	}

	if err := g.Where("operator_id = ? AND ((status IN ? AND in_progress = ?) OR (status NOT IN ? AND in_progress = ?))",
		operatorID, openStatuses, false, openStatuses, true).
		Order("started_at DESC").
		Find(&r.Inconsistent).Error; err != nil {
		return nil, storeErr("audit inconsistent", err)
	}
	return r, nil
}

// Delete removes an activity together with its pieces and session row.
func (e *Engine) Delete(ctx context.Context, activityID string) error {
	if strings.TrimSpace(activityID) == "" {
		return invalidArg("activity id is required")
	}
	var deleted int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id = ?", activityID).Delete(&models.PieceRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("activity_id = ?", activityID).Delete(&models.OpenSession{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", activityID).Delete(&models.Activity{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return storeErr("delete activity", err)
	}
	if deleted == 0 {
		return newError(ErrNotFound, MsgActivityNotFound)
	}
	e.logger(ctx).Warn("activity deleted", "activity_id", activityID)
	return nil
}
