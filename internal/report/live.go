package report

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// LiveSession is one open activity on the floor.
type LiveSession struct {
	ActivityID    string    `json:"activity_id"`
	OperatorID    string    `json:"operator_id"`
	OperatorName  string    `json:"operator_name"`
	Badge         string    `json:"badge"`
	Process       string    `json:"process"`
	WorkOrderCode string    `json:"work_order_code"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	ElapsedSec    int64     `json:"elapsed_sec"`
	PiecesDone    int       `json:"pieces_done"`
	PlannedQty    int       `json:"planned_qty"`
	DeviceID      string    `json:"device_id"`
}

// Live lists open activities, oldest first, with elapsed time net of
// pauses as of now.
func Live(ctx context.Context, gdb *gorm.DB, now time.Time) ([]LiveSession, error) {
	var acts []models.Activity
	err := gdb.WithContext(ctx).
		Preload("Operator").Preload("Process").Preload("WorkOrder").
		Where("status IN ?", []string{models.StatusActive, models.StatusPaused}).
		Order("started_at").
		Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("report: live sessions: %w", err)
	}
	out := make([]LiveSession, 0, len(acts))
	for i := range acts {
		a := &acts[i]
		s := LiveSession{
			ActivityID: a.ID,
			OperatorID: a.OperatorID,
			Status:     a.Status,
			StartedAt:  a.StartedAt,
			ElapsedSec: activity.LiveElapsed(a, now),
			PiecesDone: a.PiecesDone,
			PlannedQty: a.PlannedQty,
			DeviceID:   a.DeviceID,
		}
		if a.Operator != nil {
			s.OperatorName, s.Badge = a.Operator.Name, a.Operator.Badge
		}
		if a.Process != nil {
			s.Process = a.Process.Name
		}
		if a.WorkOrder != nil {
			s.WorkOrderCode = a.WorkOrder.Code
		}
		out = append(out, s)
	}
	return out, nil
}
