package activity

import (
	"sort"
	"time"

	"github.com/zulandar/shopclock/internal/models"
)

// TPU derivation modes.
const (
	ModePerPiece = "per_piece"
	ModeFallback = "fallback"
)

// TPU is a time-per-unit figure and how it was derived.
type TPU struct {
	Mode           string  `json:"mode"`
	SecondsPerUnit float64 `json:"seconds_per_unit"`
	Samples        int     `json:"samples"`
}

// Minutes returns the time per unit in minutes.
func (t TPU) Minutes() float64 {
	return t.SecondsPerUnit / 60
}

// PieceDuration is one registered piece with its own duration.
type PieceDuration struct {
	ID            string    `json:"id"`
	Sequence      int       `json:"sequence"`
	CumulativeSec int64     `json:"cumulative_sec"`
	IndividualSec int64     `json:"individual_sec"`
	IndividualMin float64   `json:"individual_min"`
	CompletedAt   time.Time `json:"completed_at"`
}

// IndividualDurations orders pieces by sequence and derives each piece's
// duration as the difference from the previous piece's cumulative time.
// The first piece's duration is its cumulative time.
func IndividualDurations(pieces []models.PieceRecord) []PieceDuration {
	sorted := make([]models.PieceRecord, len(pieces))
	copy(sorted, pieces)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	out := make([]PieceDuration, 0, len(sorted))
	var prev int64
	for _, p := range sorted {
		d := p.CumulativeSec - prev
		out = append(out, PieceDuration{
			ID:            p.ID,
			Sequence:      p.Sequence,
			CumulativeSec: p.CumulativeSec,
			IndividualSec: d,
			IndividualMin: float64(d) / 60,
			CompletedAt:   p.CompletedAt,
		})
		prev = p.CumulativeSec
	}
	return out
}

// PerPieceTPU is the mean individual duration across all registered pieces.
// It reports false when there are no pieces.
func PerPieceTPU(pieces []models.PieceRecord) (TPU, bool) {
	if len(pieces) == 0 {
		return TPU{}, false
	}
	var sum int64
	for _, d := range IndividualDurations(pieces) {
		sum += d.IndividualSec
	}
	return TPU{
		Mode:           ModePerPiece,
		SecondsPerUnit: float64(sum) / float64(len(pieces)),
		Samples:        len(pieces),
	}, true
}

// FallbackTPU divides the activity's net elapsed time by the realized
// quantity. It reports false when realized is not positive.
func FallbackTPU(totalElapsedSec int64, realizedQty int) (TPU, bool) {
	if realizedQty <= 0 {
		return TPU{}, false
	}
	return TPU{
		Mode:           ModeFallback,
		SecondsPerUnit: float64(totalElapsedSec) / float64(realizedQty),
		Samples:        realizedQty,
	}, true
}

// SelectTPU picks the per-piece figure when pieces exist and falls back to
// total/realized otherwise.
func SelectTPU(a *models.Activity, pieces []models.PieceRecord) (TPU, bool) {
	if t, ok := PerPieceTPU(pieces); ok {
		return t, true
	}
	if a.TotalElapsedSec == nil || a.RealizedQty == nil {
		return TPU{}, false
	}
	return FallbackTPU(*a.TotalElapsedSec, *a.RealizedQty)
}

// PositiveDurations drops non-positive durations, which reporting treats as
// measurement errors. It returns the kept durations and how many were dropped.
func PositiveDurations(ds []PieceDuration) ([]PieceDuration, int) {
	kept := make([]PieceDuration, 0, len(ds))
	for _, d := range ds {
		if d.IndividualSec > 0 {
			kept = append(kept, d)
		}
	}
	return kept, len(ds) - len(kept)
}
