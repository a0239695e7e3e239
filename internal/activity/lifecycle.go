package activity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var openStatuses = []string{models.StatusActive, models.StatusPaused}

// PieceResult is the outcome of RegisterPiece.
type PieceResult struct {
	Piece         models.PieceRecord `json:"piece"`
	IndividualSec int64              `json:"individual_sec"`
	CumulativeSec int64              `json:"cumulative_sec"`
	PiecesDone    int                `json:"pieces_done"`
	PlannedQty    int                `json:"planned_qty"`
}

// Metrics are the figures computed when an activity is finished.
type Metrics struct {
	TotalElapsedSec  int64    `json:"total_elapsed_sec"`
	TimePerUnitSec   *float64 `json:"time_per_unit_sec"`
	PiecesRegistered int      `json:"pieces_registered"`
	Status           string   `json:"status"`
	TPU              *TPU     `json:"tpu,omitempty"`
}

// FinishResult is the outcome of Finish.
type FinishResult struct {
	Activity *models.Activity `json:"activity"`
	Metrics  Metrics          `json:"metrics"`
}

// Start opens a new activity for an operator. An operator may hold at most
// one open activity; a second Start fails with ErrConflict and the blocking
// activity's id.
func (e *Engine) Start(ctx context.Context, cmd StartCmd) (*models.Activity, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	g := e.db.WithContext(ctx)

	var op models.Operator
	if err := g.Where("id = ?", cmd.OperatorID).First(&op).Error; err != nil {
		return nil, lookupErr(err, MsgOperatorNotFound)
	}
	if !op.Active {
		return nil, newError(ErrForbidden, MsgOperatorInactive)
	}

	open, err := e.openActivity(ctx, op.ID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, &Error{Kind: ErrConflict, Msg: MsgSessionOpen, ActivityID: open.ID}
	}

	var proc models.Process
	if err := g.Where("id = ?", cmd.ProcessID).First(&proc).Error; err != nil {
		return nil, lookupErr(err, MsgProcessNotFound)
	}
	if !proc.Active {
		return nil, newError(ErrForbidden, MsgProcessInactive)
	}

	var wo models.WorkOrder
	if err := g.Where("id = ?", cmd.WorkOrderID).First(&wo).Error; err != nil {
		return nil, lookupErr(err, MsgWorkOrderNotFound)
	}
	if wo.Status != models.WorkOrderOpen && wo.Status != models.WorkOrderInProgress {
		return nil, &Error{Kind: ErrConflict, Msg: MsgWorkOrderClosed, Detail: "status " + wo.Status}
	}

	var mach *models.Machine
	if cmd.MachineID != nil {
		var m models.Machine
		if err := g.Where("id = ?", *cmd.MachineID).First(&m).Error; err != nil {
			return nil, lookupErr(err, MsgMachineNotFound)
		}
		if !m.Active {
			return nil, newError(ErrForbidden, MsgMachineInactive)
		}
		if err := e.checkHeads(ctx, &m, cmd.HeadsInUse); err != nil {
			return nil, err
		}
		mach = &m
	}

	device := strings.TrimSpace(cmd.DeviceID)
	if device == "" {
		device = "unknown"
	}
	a := &models.Activity{
		ID:          uuid.NewString(),
		OperatorID:  op.ID,
		ProcessID:   proc.ID,
		WorkOrderID: wo.ID,
		MachineID:   cmd.MachineID,
		PlannedQty:  cmd.PlannedQty,
		Status:      models.StatusActive,
		InProgress:  true,
		Pauses:      datatypes.JSONSlice[models.Pause]{},
		DeviceID:    device,
		StartedAt:   e.now(),
	}
	if len(cmd.HeadsInUse) > 0 {
		a.HeadsInUse = datatypes.JSONSlice[int](cmd.HeadsInUse)
		a.EfficiencyPct = efficiency(len(cmd.HeadsInUse), mach.Heads)
	}

	err = g.Transaction(func(tx *gorm.DB) error {
		// Session rows left behind by closed activities would block forever.
		stale := tx.Model(&models.Activity{}).Select("id").Where("status NOT IN ?", openStatuses)
		if err := tx.Where("operator_id = ? AND activity_id IN (?)", op.ID, stale).
			Delete(&models.OpenSession{}).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(a).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.OpenSession{OperatorID: op.ID, ActivityID: a.ID}).Error; err != nil {
			return err
		}
		return tx.Model(&models.WorkOrder{}).Where("id = ?", wo.ID).
			Update("status", models.WorkOrderInProgress).Error
	})
	if err != nil {
		if db.IsDuplicate(err) {
			return nil, e.sessionConflict(ctx, op.ID)
		}
		return nil, storeErr("start activity", err)
	}

	wo.Status = models.WorkOrderInProgress
	a.Operator, a.Process, a.WorkOrder, a.Machine = &op, &proc, &wo, mach

	e.logger(ctx).Info("activity started",
		"activity_id", a.ID, "operator_id", op.ID, "process_id", proc.ID,
		"work_order_id", wo.ID, "planned_qty", a.PlannedQty, "device_id", device)
	e.rec.Started(ctx, a)
	return a, nil
}

// RegisterPiece records completion of piece number cmd.Sequence with its
// cumulative elapsed time.
func (e *Engine) RegisterPiece(ctx context.Context, cmd RegisterPieceCmd) (*PieceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	a, err := e.load(ctx, cmd.ActivityID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.StatusActive || !a.InProgress {
		return nil, &Error{Kind: ErrInvalidState, Msg: MsgNotActive, Detail: "status " + a.Status}
	}
	if cmd.Sequence > a.PlannedQty {
		return nil, &Error{Kind: ErrInvalidArgument, Msg: MsgPieceExceedsPlan,
			Detail: fmt.Sprintf("piece %d, planned %d", cmd.Sequence, a.PlannedQty)}
	}

	g := e.db.WithContext(ctx)
	var n int64
	if err := g.Model(&models.PieceRecord{}).
		Where("activity_id = ? AND sequence = ?", a.ID, cmd.Sequence).
		Count(&n).Error; err != nil {
		return nil, storeErr("count pieces", err)
	}
	if n > 0 {
		return nil, &Error{Kind: ErrConflict, Msg: MsgPieceDuplicate, Detail: fmt.Sprintf("piece %d", cmd.Sequence)}
	}

	individual := cmd.CumulativeSec
	var prev models.PieceRecord
	err = g.Where("activity_id = ? AND sequence < ?", a.ID, cmd.Sequence).
		Order("sequence DESC").First(&prev).Error
	switch {
	case err == nil:
		individual -= prev.CumulativeSec
	case !db.IsNotFound(err):
		return nil, storeErr("lookup previous piece", err)
	}
	if individual < 0 {
		if e.limits.RejectNegativePieceTime {
			return nil, &Error{Kind: ErrInvalidArgument, Msg: MsgNegativePieceTime,
				Detail: fmt.Sprintf("piece %d: %ds after piece %d", cmd.Sequence, cmd.CumulativeSec, prev.Sequence)}
		}
		e.logger(ctx).Warn("negative piece time",
			"activity_id", a.ID, "sequence", cmd.Sequence, "individual_sec", individual)
	}

	piece := models.PieceRecord{
		ID:            uuid.NewString(),
		ActivityID:    a.ID,
		Sequence:      cmd.Sequence,
		CumulativeSec: cmd.CumulativeSec,
		CompletedAt:   e.now(),
	}
	var done int
	err = g.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&piece).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Activity{}).
			Where("id = ? AND status = ?", a.ID, models.StatusActive).
			Updates(map[string]any{
				"pieces_done": gorm.Expr("pieces_done + ?", 1),
				"version":     gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errStateChanged
		}
		return tx.Model(&models.Activity{}).Select("pieces_done").Where("id = ?", a.ID).Scan(&done).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, errStateChanged):
		return nil, newError(ErrInvalidState, MsgNotActive)
	case db.IsDuplicate(err):
		return nil, &Error{Kind: ErrConflict, Msg: MsgPieceDuplicate, Detail: fmt.Sprintf("piece %d", cmd.Sequence)}
	default:
		return nil, storeErr("register piece", err)
	}
	a.PiecesDone = done

	e.logger(ctx).Info("piece registered",
		"activity_id", a.ID, "sequence", piece.Sequence, "cumulative_sec", piece.CumulativeSec,
		"individual_sec", individual, "pieces_done", done, "planned_qty", a.PlannedQty)
	e.rec.PieceRegistered(ctx, a, individual)
	return &PieceResult{
		Piece:         piece,
		IndividualSec: individual,
		CumulativeSec: piece.CumulativeSec,
		PiecesDone:    done,
		PlannedQty:    a.PlannedQty,
	}, nil
}

// Pause suspends an active activity. Paused time is excluded from the
// activity's elapsed time.
func (e *Engine) Pause(ctx context.Context, cmd PauseCmd) (*models.Activity, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var a *models.Activity
	err := retryStale(func() error {
		var err error
		if a, err = e.load(ctx, cmd.ActivityID); err != nil {
			return err
		}
		if a.Status != models.StatusActive {
			return &Error{Kind: ErrInvalidState, Msg: MsgNotActive, Detail: "status " + a.Status}
		}

		pauses := make([]models.Pause, len(a.Pauses), len(a.Pauses)+1)
		copy(pauses, a.Pauses)
		pauses = append(pauses, models.Pause{Start: e.now(), Reason: strings.TrimSpace(cmd.Reason)})

		if err := guardedUpdate(e.db.WithContext(ctx), a, []string{models.StatusActive}, map[string]any{
			"status": models.StatusPaused,
			"pauses": datatypes.JSONSlice[models.Pause](pauses),
		}); err != nil {
			return err
		}
		a.Status = models.StatusPaused
		a.Pauses = pauses
		return nil
	})
	if err != nil {
		return nil, transitionErr(err, "pause activity")
	}

	e.logger(ctx).Info("activity paused", "activity_id", a.ID, "reason", cmd.Reason)
	e.rec.Paused(ctx, a)
	return a, nil
}

// Resume continues a paused activity, closing its open pause.
func (e *Engine) Resume(ctx context.Context, cmd ResumeCmd) (*models.Activity, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var a *models.Activity
	err := retryStale(func() error {
		var err error
		if a, err = e.load(ctx, cmd.ActivityID); err != nil {
			return err
		}
		if a.Status != models.StatusPaused {
			return &Error{Kind: ErrInvalidState, Msg: MsgNotPaused, Detail: "status " + a.Status}
		}

		now := e.now()
		pauses := make([]models.Pause, len(a.Pauses))
		copy(pauses, a.Pauses)
		if i := a.OpenPause(); i >= 0 {
			pauses[i].End = &now
		} else {
			e.logger(ctx).Warn("paused activity has no open pause", "activity_id", a.ID)
		}

		if err := guardedUpdate(e.db.WithContext(ctx), a, []string{models.StatusPaused}, map[string]any{
			"status": models.StatusActive,
			"pauses": datatypes.JSONSlice[models.Pause](pauses),
		}); err != nil {
			return err
		}
		a.Status = models.StatusActive
		a.Pauses = pauses
		return nil
	})
	if err != nil {
		return nil, transitionErr(err, "resume activity")
	}

	e.logger(ctx).Info("activity resumed", "activity_id", a.ID)
	e.rec.Resumed(ctx, a)
	return a, nil
}

// Finish closes an open activity, computing its net elapsed time and time
// per unit. Activities whose net elapsed time is negative or above the
// anomaly threshold are closed as anomalous.
func (e *Engine) Finish(ctx context.Context, cmd FinishCmd) (*FinishResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var (
		a        *models.Activity
		realized int
		total    int64
		perUnit  *float64
		status   string
	)
	err := retryStale(func() error {
		var err error
		if a, err = e.load(ctx, cmd.ActivityID); err != nil {
			return err
		}
		if !a.Open() {
			return &Error{Kind: ErrInvalidState, Msg: MsgNotOpen, Detail: "status " + a.Status}
		}

		switch {
		case cmd.RealizedQty != nil:
			realized = *cmd.RealizedQty
		case a.PiecesDone > 0:
			realized = a.PiecesDone
		default:
			return newError(ErrInvalidArgument, MsgRealizedRequired)
		}
		limit := int(math.Floor(float64(a.PlannedQty) * e.limits.RealizedCapRatio))
		if realized > limit {
			return &Error{Kind: ErrInvalidArgument, Msg: MsgRealizedExceedsCap,
				Detail: fmt.Sprintf("realized %d, maximum %d", realized, limit)}
		}

		now := e.now()
		pauses := make([]models.Pause, len(a.Pauses))
		copy(pauses, a.Pauses)
		if a.Status == models.StatusPaused {
			if i := a.OpenPause(); i >= 0 {
				pauses[i].End = &now
			}
		}
		var openPauses int
		total, openPauses = NetElapsed(a.StartedAt, now, pauses)
		if openPauses > 0 {
			e.logger(ctx).Warn("open pauses ignored in elapsed time", "activity_id", a.ID, "open_pauses", openPauses)
		}
		perUnit = nil
		if realized > 0 {
			v := float64(total) / float64(realized)
			perUnit = &v
		}
		status = Classify(total, e.limits.AnomalyThreshold)
		var reason *string
		if cmd.ScrapQty > 0 {
			reason = &cmd.ScrapReason
		}

		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := guardedUpdate(tx, a, openStatuses, map[string]any{
				"status":            status,
				"in_progress":       false,
				"ended_at":          now,
				"realized_qty":      realized,
				"scrap_qty":         cmd.ScrapQty,
				"scrap_reason":      reason,
				"pauses":            datatypes.JSONSlice[models.Pause](pauses),
				"total_elapsed_sec": total,
				"time_per_unit_sec": perUnit,
			})
			if err != nil {
				return err
			}
			if err := tx.Where("operator_id = ? AND activity_id = ?", a.OperatorID, a.ID).
				Delete(&models.OpenSession{}).Error; err != nil {
				return err
			}
			return tx.Model(&models.WorkOrder{}).Where("id = ?", a.WorkOrderID).
				Update("status", models.WorkOrderOpen).Error
		})
		if err != nil {
			return err
		}

		a.Status = status
		a.InProgress = false
		a.EndedAt = &now
		a.RealizedQty = &realized
		a.ScrapQty = cmd.ScrapQty
		a.ScrapReason = reason
		a.Pauses = pauses
		a.TotalElapsedSec = &total
		a.TimePerUnitSec = perUnit
		return nil
	})
	if err != nil {
		return nil, transitionErr(err, "finish activity")
	}

	var pieces []models.PieceRecord
	if err := e.db.WithContext(ctx).Where("activity_id = ?", a.ID).Order("sequence").Find(&pieces).Error; err != nil {
		// The activity is closed; only the per-piece figure is lost.
		e.logger(ctx).Warn("load pieces after finish", "activity_id", a.ID, "error", err)
	}
	m := Metrics{
		TotalElapsedSec:  total,
		TimePerUnitSec:   perUnit,
		PiecesRegistered: a.PiecesDone,
		Status:           status,
	}
	if t, ok := SelectTPU(a, pieces); ok {
		m.TPU = &t
	}

	log := e.logger(ctx).With("activity_id", a.ID, "operator_id", a.OperatorID,
		"total_elapsed_sec", total, "realized_qty", realized, "scrap_qty", cmd.ScrapQty)
	if status == models.StatusAnomalous {
		log.Warn("activity finished as anomalous")
		e.notify(ctx, "Anomalous activity",
			fmt.Sprintf("Activity %s of operator %s closed with net elapsed time %s (threshold %s).",
				a.ID, a.OperatorID, time.Duration(total)*time.Second, e.limits.AnomalyThreshold))
	} else {
		log.Info("activity finished")
	}
	e.rec.Finished(ctx, a, m.TPU)
	return &FinishResult{Activity: a, Metrics: m}, nil
}

// openActivity returns the operator's open activity, or nil.
func (e *Engine) openActivity(ctx context.Context, operatorID string) (*models.Activity, error) {
	var a models.Activity
	err := e.db.WithContext(ctx).
		Where("operator_id = ? AND status IN ? AND in_progress = ?", operatorID, openStatuses, true).
		Order("started_at DESC").First(&a).Error
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, storeErr("lookup open activity", err)
	}
	return &a, nil
}

// sessionConflict builds the Conflict error for a lost single-session race.
func (e *Engine) sessionConflict(ctx context.Context, operatorID string) error {
	conflict := &Error{Kind: ErrConflict, Msg: MsgSessionOpen}
	var s models.OpenSession
	if err := e.db.WithContext(ctx).Where("operator_id = ?", operatorID).First(&s).Error; err == nil {
		conflict.ActivityID = s.ActivityID
	}
	return conflict
}

// maxAttempts bounds how often a read-modify-write transition is retried
// after losing a race with another update of the same activity.
const maxAttempts = 3

// retryStale runs fn until it does not fail with errStale.
func retryStale(fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, errStale) {
			return err
		}
		if attempt == maxAttempts {
			return newError(ErrConflict, MsgConcurrentUpdate)
		}
	}
}

// guardedUpdate applies updates only while the activity is in one of the
// from statuses and still at the version that was read, returning errStale
// when no row matched. On success a.Version is advanced.
func guardedUpdate(tx *gorm.DB, a *models.Activity, from []string, updates map[string]any) error {
	updates["version"] = gorm.Expr("version + 1")
	res := tx.Model(&models.Activity{}).
		Where("id = ? AND status IN ? AND version = ?", a.ID, from, a.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStale
	}
	a.Version++
	return nil
}

// transitionErr passes engine errors through and wraps store failures.
func transitionErr(err error, action string) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return storeErr(action, err)
}
