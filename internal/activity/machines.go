package activity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// efficiency is the share of the machine's heads in use, rounded to a whole
// percent. It is nil when the machine has no heads.
func efficiency(inUse, heads int) *int {
	if heads <= 0 {
		return nil
	}
	v := int(math.Round(float64(inUse) / float64(heads) * 100))
	return &v
}

// checkHeads rejects head numbers beyond the machine and heads that have an
// open problem.
func (e *Engine) checkHeads(ctx context.Context, m *models.Machine, heads []int) error {
	for _, h := range heads {
		if h > m.Heads {
			return invalidArg("head %d exceeds machine heads (%d)", h, m.Heads)
		}
	}
	if len(heads) == 0 {
		return nil
	}
	var blocked []int
	err := e.db.WithContext(ctx).Model(&models.HeadProblem{}).
		Where("machine_id = ? AND head IN ? AND resolved_at IS NULL", m.ID, heads).
		Order("head").Pluck("head", &blocked).Error
	if err != nil {
		return storeErr("lookup head problems", err)
	}
	if len(blocked) > 0 {
		return &Error{Kind: ErrConflict, Msg: MsgHeadsUnavailable, Detail: fmt.Sprintf("heads %v", blocked)}
	}
	return nil
}

// ReportProblem opens a problem on one head of the activity's machine. The
// head is marked as having a problem until the problem is resolved.
func (e *Engine) ReportProblem(ctx context.Context, cmd ReportProblemCmd) (*models.HeadProblem, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var (
		a    *models.Activity
		mach models.Machine
		p    *models.HeadProblem
	)
	err := retryStale(func() error {
		var err error
		if a, err = e.load(ctx, cmd.ActivityID); err != nil {
			return err
		}
		if !a.Open() {
			return &Error{Kind: ErrInvalidState, Msg: MsgNotOpen, Detail: "status " + a.Status}
		}
		if a.MachineID == nil {
			return newError(ErrInvalidState, MsgNoMachine)
		}
		g := e.db.WithContext(ctx)
		if err := g.Where("id = ?", *a.MachineID).First(&mach).Error; err != nil {
			return lookupErr(err, MsgMachineNotFound)
		}
		var head models.MachineHead
		if err := g.Where("machine_id = ? AND number = ?", mach.ID, cmd.Head).First(&head).Error; err != nil {
			return lookupErr(err, MsgHeadNotFound)
		}

		now := e.now()
		activityID := a.ID
		p = &models.HeadProblem{
			ActivityID:  &activityID,
			MachineID:   mach.ID,
			Head:        cmd.Head,
			Kind:        cmd.Kind,
			Description: cmd.Description,
			StartedAt:   now,
		}
		return g.Transaction(func(tx *gorm.DB) error {
			var open int64
			if err := tx.Model(&models.HeadProblem{}).
				Where("machine_id = ? AND head = ? AND resolved_at IS NULL", mach.ID, cmd.Head).
				Count(&open).Error; err != nil {
				return err
			}
			if open > 0 {
				return &Error{Kind: ErrConflict, Msg: MsgProblemOpen, Detail: fmt.Sprintf("head %d", cmd.Head)}
			}
			if err := tx.Omit("Machine").Create(p).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.MachineHead{}).Where("id = ?", head.ID).Updates(map[string]any{
				"status":        models.HeadStatusProblem,
				"last_problem":  cmd.Kind,
				"problem_count": gorm.Expr("problem_count + 1"),
			}).Error; err != nil {
				return err
			}
			return guardedUpdate(tx, a, openStatuses, map[string]any{
				"problem_count": gorm.Expr("problem_count + 1"),
			})
		})
	})
	if err != nil {
		return nil, transitionErr(err, "report problem")
	}

	e.logger(ctx).Warn("head problem reported",
		"activity_id", a.ID, "machine_id", mach.ID, "head", p.Head, "kind", p.Kind, "problem_id", p.ID)
	e.notify(ctx, "Head problem",
		fmt.Sprintf("%s head %d: %s (activity %s)", mach.Name, p.Head, p.Kind, a.ID))
	return p, nil
}

// ResolveProblem closes an open head problem, recording its downtime on the
// problem and on the activity it was reported from.
func (e *Engine) ResolveProblem(ctx context.Context, cmd ResolveProblemCmd) (*models.HeadProblem, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	g := e.db.WithContext(ctx)

	var p models.HeadProblem
	if err := g.Where("id = ?", cmd.ProblemID).First(&p).Error; err != nil {
		return nil, lookupErr(err, MsgProblemNotFound)
	}
	if !p.Open() {
		return nil, newError(ErrInvalidState, MsgProblemResolved)
	}
	var resolvedBy *string
	if cmd.ResolvedBy != "" {
		var op models.Operator
		if err := g.Where("id = ?", cmd.ResolvedBy).First(&op).Error; err != nil {
			return nil, lookupErr(err, MsgOperatorNotFound)
		}
		resolvedBy = &op.ID
	}

	now := e.now()
	downtime := int64(now.Sub(p.StartedAt) / time.Second)
	if downtime < 0 {
		downtime = 0
	}
	err := g.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.HeadProblem{}).
			Where("id = ? AND resolved_at IS NULL", p.ID).
			Updates(map[string]any{"resolved_at": now, "resolved_by": resolvedBy, "downtime_sec": downtime})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrInvalidState, MsgProblemResolved)
		}
		if err := tx.Model(&models.MachineHead{}).
			Where("machine_id = ? AND number = ?", p.MachineID, p.Head).
			Updates(map[string]any{"status": models.HeadOK, "last_maintenance": now}).Error; err != nil {
			return err
		}
		if p.ActivityID == nil {
			return nil
		}
		return tx.Model(&models.Activity{}).Where("id = ?", *p.ActivityID).Updates(map[string]any{
			"problem_downtime_sec": gorm.Expr("problem_downtime_sec + ?", downtime),
			"version":              gorm.Expr("version + 1"),
		}).Error
	})
	if err != nil {
		return nil, transitionErr(err, "resolve problem")
	}

	p.ResolvedAt = &now
	p.ResolvedBy = resolvedBy
	p.DowntimeSec = downtime
	e.logger(ctx).Info("head problem resolved",
		"problem_id", p.ID, "machine_id", p.MachineID, "head", p.Head, "downtime_sec", downtime)
	return &p, nil
}

// ChangeHeads replaces the heads an open activity runs on and recomputes
// its efficiency.
func (e *Engine) ChangeHeads(ctx context.Context, cmd ChangeHeadsCmd) (*models.Activity, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	var a *models.Activity
	err := retryStale(func() error {
		var err error
		if a, err = e.load(ctx, cmd.ActivityID); err != nil {
			return err
		}
		if !a.Open() {
			return &Error{Kind: ErrInvalidState, Msg: MsgNotOpen, Detail: "status " + a.Status}
		}
		if a.MachineID == nil {
			return newError(ErrInvalidState, MsgNoMachine)
		}
		var m models.Machine
		if err := e.db.WithContext(ctx).Where("id = ?", *a.MachineID).First(&m).Error; err != nil {
			return lookupErr(err, MsgMachineNotFound)
		}
		if err := e.checkHeads(ctx, &m, cmd.HeadsInUse); err != nil {
			return err
		}

		heads := datatypes.JSONSlice[int](cmd.HeadsInUse)
		eff := efficiency(len(cmd.HeadsInUse), m.Heads)
		if err := guardedUpdate(e.db.WithContext(ctx), a, openStatuses, map[string]any{
			"heads_in_use":   heads,
			"efficiency_pct": eff,
		}); err != nil {
			return err
		}
		a.HeadsInUse = heads
		a.EfficiencyPct = eff
		return nil
	})
	if err != nil {
		return nil, transitionErr(err, "change heads")
	}

	e.logger(ctx).Info("activity heads changed",
		"activity_id", a.ID, "heads", []int(a.HeadsInUse), "efficiency_pct", *a.EfficiencyPct)
	return a, nil
}

// ProblemFilter narrows Problems results. Zero fields are ignored; a nil
// Resolved lists both open and resolved problems.
type ProblemFilter struct {
	MachineID  uint
	ActivityID string
	Resolved   *bool
	Limit      int
}

// Problems returns head problems matching f, newest first.
func (e *Engine) Problems(ctx context.Context, f ProblemFilter) ([]models.HeadProblem, error) {
	q := e.db.WithContext(ctx).Preload("Machine")
	if f.MachineID != 0 {
		q = q.Where("machine_id = ?", f.MachineID)
	}
	if f.ActivityID != "" {
		q = q.Where("activity_id = ?", f.ActivityID)
	}
	if f.Resolved != nil {
		if *f.Resolved {
			q = q.Where("resolved_at IS NOT NULL")
		} else {
			q = q.Where("resolved_at IS NULL")
		}
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var list []models.HeadProblem
	if err := q.Order("started_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, storeErr("list problems", err)
	}
	return list, nil
}
