package report

import (
	"context"
	"fmt"

	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// FastestProcess is the process with the lowest mean TPU in a range.
type FastestProcess struct {
	ProcessID  string  `json:"process_id"`
	Name       string  `json:"name"`
	MeanTPUMin float64 `json:"mean_tpu_min"`
}

// Overview is the headline summary of a range.
type Overview struct {
	Range           Range            `json:"range"`
	Pieces          int              `json:"pieces"`
	Operators       int              `json:"operators"`
	Processes       int              `json:"processes"`
	MeanTPUMin      float64          `json:"mean_tpu_min"`
	PiecesPerHour   float64          `json:"pieces_per_hour"`
	Fastest         *FastestProcess  `json:"fastest,omitempty"`
	Activities      map[string]int64 `json:"activities"`
	MeanActivityMin float64          `json:"mean_activity_min"`
	WorkOrders      map[string]int64 `json:"work_orders"`
	Discarded       int              `json:"discarded"`
}

// BuildOverview summarizes pieces completed and activities started in r,
// plus the current work order status counts.
func BuildOverview(ctx context.Context, gdb *gorm.DB, r Range) (*Overview, error) {
	all, err := loadSamples(ctx, gdb, r)
	if err != nil {
		return nil, err
	}
	kept, discarded := positive(all)
	ov := &Overview{
		Range:      r,
		Pieces:     len(all),
		Discarded:  discarded,
		Activities: map[string]int64{},
		WorkOrders: map[string]int64{},
	}

	operators := map[string]bool{}
	processes := map[string]bool{}
	for _, s := range all {
		operators[s.OperatorID] = true
		processes[s.ProcessID] = true
	}
	ov.Operators, ov.Processes = len(operators), len(processes)

	if len(kept) > 0 {
		vals := make([]float64, len(kept))
		byProc := map[string][]float64{}
		for i, s := range kept {
			vals[i] = s.minutes()
			byProc[s.ProcessID] = append(byProc[s.ProcessID], s.minutes())
		}
		mean, _ := meanStd(vals)
		ov.MeanTPUMin = round1(mean)

		names, err := processNames(ctx, gdb)
		if err != nil {
			return nil, err
		}
		for id, pv := range byProc {
			m, _ := meanStd(pv)
			if ov.Fastest == nil || m < ov.Fastest.MeanTPUMin ||
				(m == ov.Fastest.MeanTPUMin && names[id] < ov.Fastest.Name) {
				ov.Fastest = &FastestProcess{ProcessID: id, Name: names[id], MeanTPUMin: m}
			}
		}
		ov.Fastest.MeanTPUMin = round1(ov.Fastest.MeanTPUMin)
	}

	if len(all) > 1 {
		first, last := all[0].CompletedAt, all[0].CompletedAt
		for _, s := range all[1:] {
			if s.CompletedAt.Before(first) {
				first = s.CompletedAt
			}
			if s.CompletedAt.After(last) {
				last = s.CompletedAt
			}
		}
		if hours := last.Sub(first).Hours(); hours > 0 {
			ov.PiecesPerHour = round1(float64(len(all)) / hours)
		}
	}

	if err := countBy(ctx, gdb.Model(&models.Activity{}).
		Where("started_at >= ? AND started_at < ?", r.From, r.To), ov.Activities); err != nil {
		return nil, err
	}
	if err := countBy(ctx, gdb.Model(&models.WorkOrder{}), ov.WorkOrders); err != nil {
		return nil, err
	}

	var avg struct{ Avg *float64 }
	if err := gdb.WithContext(ctx).Model(&models.Activity{}).
		Select("AVG(total_elapsed_sec) AS avg").
		Where("started_at >= ? AND started_at < ? AND total_elapsed_sec IS NOT NULL AND status IN ?",
			r.From, r.To, []string{models.StatusFinished, models.StatusAnomalous}).
		Scan(&avg).Error; err != nil {
		return nil, fmt.Errorf("report: mean activity time: %w", err)
	}
	if avg.Avg != nil {
		ov.MeanActivityMin = round1(*avg.Avg / 60)
	}
	return ov, nil
}

// countBy fills into with row counts grouped by the status column.
func countBy(ctx context.Context, q *gorm.DB, into map[string]int64) error {
	var rows []struct {
		Status string
		N      int64
	}
	if err := q.WithContext(ctx).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return fmt.Errorf("report: count by status: %w", err)
	}
	for _, row := range rows {
		into[row.Status] = row.N
	}
	return nil
}
