package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// sample is one produced unit with its time per unit and owning activity
// context. Registered pieces carry their individual duration; activities
// closed without pieces contribute one sample per realized unit at the
// fallback time per unit.
type sample struct {
	ActivityID  string
	OperatorID  string
	ProcessID   string
	Mode        string
	Seconds     float64
	CompletedAt time.Time
}

func (s sample) minutes() float64 { return s.Seconds / 60 }

// loadSamples returns the units produced inside r: pieces completed in r
// plus the units of activities without pieces that finished in r.
func loadSamples(ctx context.Context, gdb *gorm.DB, r Range) ([]sample, error) {
	pieces, err := pieceSamples(ctx, gdb, r)
	if err != nil {
		return nil, err
	}
	fallback, err := fallbackSamples(ctx, gdb, r)
	if err != nil {
		return nil, err
	}
	return append(pieces, fallback...), nil
}

// pieceSamples derives individual durations over each activity's full piece
// list, so a piece's duration does not depend on where the range starts.
func pieceSamples(ctx context.Context, gdb *gorm.DB, r Range) ([]sample, error) {
	var ids []string
	q := gdb.WithContext(ctx).Model(&models.PieceRecord{}).
		Where("completed_at >= ? AND completed_at < ?", r.From, r.To)
	if err := q.Distinct().Pluck("activity_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("report: load piece activities: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var acts []models.Activity
	if err := gdb.WithContext(ctx).Preload("Pieces").Where("id IN ?", ids).Find(&acts).Error; err != nil {
		return nil, fmt.Errorf("report: load activities: %w", err)
	}
	var out []sample
	for _, a := range acts {
		for _, d := range activity.IndividualDurations(a.Pieces) {
			if !r.Contains(d.CompletedAt) {
				continue
			}
			out = append(out, sample{
				ActivityID:  a.ID,
				OperatorID:  a.OperatorID,
				ProcessID:   a.ProcessID,
				Mode:        activity.ModePerPiece,
				Seconds:     float64(d.IndividualSec),
				CompletedAt: d.CompletedAt,
			})
		}
	}
	return out, nil
}

// fallbackSamples covers finished activities with no registered pieces,
// timed by total elapsed over realized quantity.
func fallbackSamples(ctx context.Context, gdb *gorm.DB, r Range) ([]sample, error) {
	withPieces := gdb.Model(&models.PieceRecord{}).Select("activity_id")
	var acts []models.Activity
	if err := gdb.WithContext(ctx).
		Where("ended_at >= ? AND ended_at < ? AND status = ?", r.From, r.To, models.StatusFinished).
		Where("id NOT IN (?)", withPieces).
		Find(&acts).Error; err != nil {
		return nil, fmt.Errorf("report: load activities without pieces: %w", err)
	}
	var out []sample
	for _, a := range acts {
		t, ok := activity.SelectTPU(&a, nil)
		if !ok {
			continue
		}
		for i := 0; i < t.Samples; i++ {
			out = append(out, sample{
				ActivityID:  a.ID,
				OperatorID:  a.OperatorID,
				ProcessID:   a.ProcessID,
				Mode:        t.Mode,
				Seconds:     t.SecondsPerUnit,
				CompletedAt: *a.EndedAt,
			})
		}
	}
	return out, nil
}

// positive drops non-positive durations, which are measurement errors.
func positive(ss []sample) ([]sample, int) {
	kept := make([]sample, 0, len(ss))
	for _, s := range ss {
		if s.Seconds > 0 {
			kept = append(kept, s)
		}
	}
	return kept, len(ss) - len(kept)
}

// meanStd returns the mean and population standard deviation.
func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(vals)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// processNames maps process ids to names.
func processNames(ctx context.Context, gdb *gorm.DB) (map[string]string, error) {
	var procs []models.Process
	if err := gdb.WithContext(ctx).Find(&procs).Error; err != nil {
		return nil, fmt.Errorf("report: load processes: %w", err)
	}
	names := make(map[string]string, len(procs))
	for _, p := range procs {
		names[p.ID] = p.Name
	}
	return names, nil
}
