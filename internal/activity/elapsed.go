package activity

import (
	"time"

	"github.com/zulandar/shopclock/internal/models"
)

// NetElapsed returns the whole seconds between start and end minus the
// duration of every closed pause. Pauses without an end are not subtracted;
// their count is returned as open.
func NetElapsed(start, end time.Time, pauses []models.Pause) (total int64, open int) {
	total = seconds(end.Sub(start))
	for _, p := range pauses {
		if p.End == nil {
			open++
			continue
		}
		total -= seconds(p.End.Sub(p.Start))
	}
	return total, open
}

// LiveElapsed is NetElapsed for an activity that is still open: an open
// pause is treated as ending at now, which freezes the clock while paused.
func LiveElapsed(a *models.Activity, now time.Time) int64 {
	end := now
	if a.EndedAt != nil {
		end = *a.EndedAt
	}
	pauses := closePauses(a.Pauses, end)
	total, _ := NetElapsed(a.StartedAt, end, pauses)
	return total
}

// Classify maps a net elapsed time to a terminal status.
func Classify(totalSec int64, threshold time.Duration) string {
	if totalSec < 0 || totalSec > seconds(threshold) {
		return models.StatusAnomalous
	}
	return models.StatusFinished
}

func closePauses(pauses []models.Pause, at time.Time) []models.Pause {
	out := make([]models.Pause, len(pauses))
	copy(out, pauses)
	for i := range out {
		if out[i].End == nil {
			end := at
			out[i].End = &end
		}
	}
	return out
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
