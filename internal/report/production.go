package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// ProcessProduction is one process's output on a work order.
type ProcessProduction struct {
	ProcessID      string   `json:"process_id"`
	Process        string   `json:"process"`
	Operators      []string `json:"operators"`
	Units          int      `json:"units"`
	FallbackUnits  int      `json:"fallback_units"`
	TotalSec       float64  `json:"total_sec"`
	MeanSecPerUnit float64  `json:"mean_sec_per_unit"`
}

// WorkOrderProduction groups a work order's closed activities by process.
type WorkOrderProduction struct {
	WorkOrderID string              `json:"work_order_id"`
	Code        string              `json:"code"`
	Reference   string              `json:"reference"`
	Description string              `json:"description"`
	Processes   []ProcessProduction `json:"processes"`
}

// ProductionReport lists production per work order.
type ProductionReport struct {
	WorkOrders []WorkOrderProduction `json:"work_orders"`
	Discarded  int                   `json:"discarded"`
}

// Production builds the per-work-order production report over closed
// activities, timed the way SelectTPU picks: activities with registered
// pieces contribute their positive individual durations, activities without
// pieces contribute FallbackTPU over their realized quantity. An empty
// workOrderID covers every work order.
func Production(ctx context.Context, gdb *gorm.DB, workOrderID string) (*ProductionReport, error) {
	q := gdb.WithContext(ctx).Order("reference, code")
	if workOrderID != "" {
		q = q.Where("id = ?", workOrderID)
	}
	var orders []models.WorkOrder
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("report: load work orders: %w", err)
	}

	rep := &ProductionReport{WorkOrders: []WorkOrderProduction{}}
	for _, wo := range orders {
		var acts []models.Activity
		if err := gdb.WithContext(ctx).
			Preload("Operator").Preload("Process").Preload("Pieces").
			Where("work_order_id = ? AND ended_at IS NOT NULL", wo.ID).
			Find(&acts).Error; err != nil {
			return nil, fmt.Errorf("report: load activities for %s: %w", wo.Code, err)
		}
		if len(acts) == 0 {
			continue
		}

		type acc struct {
			ProcessProduction
			operators map[string]bool
		}
		byProc := map[string]*acc{}
		for _, a := range acts {
			p, ok := byProc[a.ProcessID]
			if !ok {
				p = &acc{operators: map[string]bool{}}
				p.ProcessID = a.ProcessID
				if a.Process != nil {
					p.Process = a.Process.Name
				}
				byProc[a.ProcessID] = p
			}
			if a.Operator != nil {
				p.operators[a.Operator.Name] = true
			}

			t, ok := activity.SelectTPU(&a, a.Pieces)
			if !ok {
				continue
			}
			if t.Mode == activity.ModeFallback {
				p.TotalSec += t.SecondsPerUnit * float64(t.Samples)
				p.Units += t.Samples
				p.FallbackUnits += t.Samples
				continue
			}
			kept, dropped := activity.PositiveDurations(activity.IndividualDurations(a.Pieces))
			rep.Discarded += dropped
			for _, d := range kept {
				p.TotalSec += float64(d.IndividualSec)
				p.Units++
			}
		}

		wp := WorkOrderProduction{
			WorkOrderID: wo.ID,
			Code:        wo.Code,
			Reference:   wo.Reference,
			Description: wo.Description,
		}
		for _, p := range byProc {
			for name := range p.operators {
				p.Operators = append(p.Operators, name)
			}
			sort.Strings(p.Operators)
			if p.Units > 0 {
				p.MeanSecPerUnit = p.TotalSec / float64(p.Units)
			}
			wp.Processes = append(wp.Processes, p.ProcessProduction)
		}
		sort.Slice(wp.Processes, func(i, j int) bool { return wp.Processes[i].Process < wp.Processes[j].Process })
		rep.WorkOrders = append(rep.WorkOrders, wp)
	}
	return rep, nil
}
