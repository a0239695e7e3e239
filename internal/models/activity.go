package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity status values.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusFinished  = "finished"
	StatusAnomalous = "anomalous"
)

// Activity is one operator's timed execution of one process against one
// work order. InProgress is true exactly while Status is active or paused.
type Activity struct {
	ID          string                     `gorm:"primaryKey;size:36" json:"id"`
	OperatorID  string                     `gorm:"size:36;not null;index" json:"operator_id"`
	ProcessID   string                     `gorm:"size:36;not null;index" json:"process_id"`
	WorkOrderID string                     `gorm:"size:36;not null;index" json:"work_order_id"`
	MachineID   *uint                      `json:"machine_id,omitempty"`
	HeadsInUse  datatypes.JSONSlice[int]   `gorm:"type:json" json:"heads_in_use,omitempty"`
	PlannedQty  int                        `gorm:"not null" json:"planned_qty"`
	RealizedQty *int                       `json:"realized_qty"`
	ScrapQty    int                        `gorm:"default:0" json:"scrap_qty"`
	ScrapReason *string                    `gorm:"size:255" json:"scrap_reason"`
	Status      string                     `gorm:"size:16;not null;default:active;index" json:"status"`
	InProgress  bool                       `gorm:"not null;index" json:"in_progress"`
	PiecesDone  int                        `gorm:"not null;default:0" json:"pieces_done"`
	Pauses      datatypes.JSONSlice[Pause] `gorm:"type:json" json:"pauses"`
	DeviceID    string                     `gorm:"size:64;default:unknown" json:"device_id"`
	StartedAt   time.Time                  `gorm:"not null;index" json:"started_at"`
	EndedAt     *time.Time                 `json:"ended_at"`

	// Version increases on every update; read-modify-write transitions
	// only commit against the version they read.
	Version int `gorm:"not null;default:0" json:"version"`

	TotalElapsedSec *int64   `json:"total_elapsed_sec"`
	TimePerUnitSec  *float64 `json:"time_per_unit_sec"`

	// EfficiencyPct is heads in use over machine heads, set with HeadsInUse.
	EfficiencyPct      *int  `json:"efficiency_pct,omitempty"`
	ProblemCount       int   `gorm:"not null;default:0" json:"problem_count"`
	ProblemDowntimeSec int64 `gorm:"not null;default:0" json:"problem_downtime_sec"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Operator  *Operator     `gorm:"foreignKey:OperatorID" json:"operator,omitempty"`
	Process   *Process      `gorm:"foreignKey:ProcessID" json:"process,omitempty"`
	WorkOrder *WorkOrder    `gorm:"foreignKey:WorkOrderID" json:"work_order,omitempty"`
	Machine   *Machine      `gorm:"foreignKey:MachineID" json:"machine,omitempty"`
	Pieces    []PieceRecord `gorm:"foreignKey:ActivityID" json:"pieces,omitempty"`
}

// Open reports whether the activity is still being timed.
func (a *Activity) Open() bool {
	return a.Status == StatusActive || a.Status == StatusPaused
}

// OpenPause returns the index of the last pause if it has no end, or -1.
func (a *Activity) OpenPause() int {
	n := len(a.Pauses)
	if n == 0 || a.Pauses[n-1].End != nil {
		return -1
	}
	return n - 1
}

// Pause is a suspension interval subtracted from an activity's elapsed time.
type Pause struct {
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end"`
	Reason string     `json:"reason,omitempty"`
}

// PieceRecord marks completion of one unit within an activity. CumulativeSec
// is the elapsed time since the activity started, not the piece's own time.
type PieceRecord struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ActivityID    string    `gorm:"size:36;not null;uniqueIndex:idx_piece_activity_seq,priority:1" json:"activity_id"`
	Sequence      int       `gorm:"not null;uniqueIndex:idx_piece_activity_seq,priority:2" json:"sequence"`
	CumulativeSec int64     `gorm:"not null" json:"cumulative_sec"`
	CompletedAt   time.Time `gorm:"not null;index" json:"completed_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// OpenSession holds one row per operator with an open activity. The primary
// key on OperatorID is the store-level single-session guard.
type OpenSession struct {
	OperatorID string `gorm:"primaryKey;size:36"`
	ActivityID string `gorm:"size:36;not null;uniqueIndex"`
	CreatedAt  time.Time
}
