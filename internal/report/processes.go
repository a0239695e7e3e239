package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// ProcessStats summarizes one process's units in a range. TPU figures are
// minutes per unit over positive durations. FallbackUnits counts units from
// activities closed without registered pieces.
type ProcessStats struct {
	ProcessID     string   `json:"process_id"`
	Name          string   `json:"name"`
	Pieces        int      `json:"pieces"`
	FallbackUnits int      `json:"fallback_units"`
	Activities    int      `json:"activities"`
	Operators     int      `json:"operators"`
	MeanTPUMin    float64  `json:"mean_tpu_min"`
	StdDevTPUMin  float64  `json:"stddev_tpu_min"`
	FirstTPUMin   *float64 `json:"first_tpu_min"`
	LastTPUMin    *float64 `json:"last_tpu_min"`
	TotalMinutes  int64    `json:"total_minutes"`
	SharePct      float64  `json:"share_pct"`
}

// Bucket is one point of the TPU evolution series.
type Bucket struct {
	Label      string  `json:"label"`
	MeanTPUMin float64 `json:"mean_tpu_min"`
	Pieces     int     `json:"pieces"`
}

// ProcessReport is the process analysis for a range.
type ProcessReport struct {
	Range     Range          `json:"range"`
	Processes []ProcessStats `json:"processes"`
	Evolution []Bucket       `json:"evolution"`
	Discarded int            `json:"discarded"`
}

// ProcessAnalysis computes per-process unit counts and TPU statistics for
// units produced in r, ordered by unit count. Non-positive individual
// durations are counted in Discarded and excluded from TPU figures.
func ProcessAnalysis(ctx context.Context, gdb *gorm.DB, r Range) (*ProcessReport, error) {
	all, err := loadSamples(ctx, gdb, r)
	if err != nil {
		return nil, err
	}
	names, err := processNames(ctx, gdb)
	if err != nil {
		return nil, err
	}
	kept, discarded := positive(all)

	type acc struct {
		pieces     int
		fallback   int
		activities map[string]bool
		operators  map[string]bool
		tpus       []sample
	}
	byProc := map[string]*acc{}
	get := func(id string) *acc {
		a, ok := byProc[id]
		if !ok {
			a = &acc{activities: map[string]bool{}, operators: map[string]bool{}}
			byProc[id] = a
		}
		return a
	}
	for _, s := range all {
		a := get(s.ProcessID)
		a.pieces++
		if s.Mode == activity.ModeFallback {
			a.fallback++
		}
		a.activities[s.ActivityID] = true
		a.operators[s.OperatorID] = true
	}
	for _, s := range kept {
		a := get(s.ProcessID)
		a.tpus = append(a.tpus, s)
	}

	rep := &ProcessReport{Range: r, Discarded: discarded, Processes: []ProcessStats{}}
	for id, a := range byProc {
		ps := ProcessStats{
			ProcessID:     id,
			Name:          names[id],
			Pieces:        a.pieces,
			FallbackUnits: a.fallback,
			Activities:    len(a.activities),
			Operators:     len(a.operators),
		}
		if len(all) > 0 {
			ps.SharePct = round1(float64(a.pieces) / float64(len(all)) * 100)
		}
		if len(a.tpus) > 0 {
			sort.Slice(a.tpus, func(i, j int) bool { return a.tpus[i].CompletedAt.Before(a.tpus[j].CompletedAt) })
			vals := make([]float64, len(a.tpus))
			for i, s := range a.tpus {
				vals[i] = s.minutes()
			}
			mean, std := meanStd(vals)
			first, last := round1(vals[0]), round1(vals[len(vals)-1])
			ps.MeanTPUMin, ps.StdDevTPUMin = round1(mean), round1(std)
			ps.FirstTPUMin, ps.LastTPUMin = &first, &last
		}
		ids := make([]string, 0, len(a.activities))
		for aid := range a.activities {
			ids = append(ids, aid)
		}
		total, err := totalElapsed(ctx, gdb, ids)
		if err != nil {
			return nil, err
		}
		ps.TotalMinutes = (total + 30) / 60
		rep.Processes = append(rep.Processes, ps)
	}
	sort.Slice(rep.Processes, func(i, j int) bool {
		if rep.Processes[i].Pieces != rep.Processes[j].Pieces {
			return rep.Processes[i].Pieces > rep.Processes[j].Pieces
		}
		return rep.Processes[i].Name < rep.Processes[j].Name
	})
	rep.Evolution = evolution(kept, r)
	return rep, nil
}

// evolution buckets TPU by hour for ranges up to a day, by day otherwise.
func evolution(ss []sample, r Range) []Bucket {
	layout := "2006-01-02"
	if r.Duration() <= 24*time.Hour {
		layout = "15:00"
	}
	loc := r.From.Location()
	groups := map[string][]float64{}
	for _, s := range ss {
		key := s.CompletedAt.In(loc).Format(layout)
		groups[key] = append(groups[key], s.minutes())
	}
	out := make([]Bucket, 0, len(groups))
	for label, vals := range groups {
		mean, _ := meanStd(vals)
		out = append(out, Bucket{Label: label, MeanTPUMin: round1(mean), Pieces: len(vals)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// totalElapsed sums the net elapsed seconds of closed activities.
func totalElapsed(ctx context.Context, gdb *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := gdb.WithContext(ctx).Model(&models.Activity{}).
		Select("COALESCE(SUM(total_elapsed_sec), 0)").
		Where("id IN ? AND total_elapsed_sec IS NOT NULL", ids).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("report: sum elapsed: %w", err)
	}
	return total, nil
}
