package models

import "time"

// Machine kinds.
const (
	MachineEmbroidery = "embroidery"
	MachineDTF        = "dtf"
	MachinePress      = "press"
)

// Machine head status values.
const (
	HeadOK            = "ok"
	HeadStatusProblem = "problem"
	HeadMaintenance   = "maintenance"
)

// Machine is a piece of equipment with a number of heads.
type Machine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Kind      string    `gorm:"size:16;not null;default:embroidery;index" json:"kind"`
	Heads     int       `gorm:"not null;default:1" json:"heads"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	HeadStates []MachineHead `gorm:"foreignKey:MachineID" json:"head_states,omitempty"`
}

// MachineHead tracks the condition of one head of a machine. Heads are
// numbered from 1.
type MachineHead struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	MachineID       uint       `gorm:"not null;uniqueIndex:idx_head_machine_number,priority:1" json:"machine_id"`
	Number          int        `gorm:"not null;uniqueIndex:idx_head_machine_number,priority:2" json:"number"`
	Status          string     `gorm:"size:16;not null;default:ok" json:"status"`
	LastProblem     string     `gorm:"size:64" json:"last_problem,omitempty"`
	ProblemCount    int        `gorm:"not null;default:0" json:"problem_count"`
	LastMaintenance *time.Time `json:"last_maintenance,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HeadProblem is a stoppage of one machine head, usually reported during an
// activity. DowntimeSec is set when the problem is resolved.
type HeadProblem struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ActivityID  *string    `gorm:"size:36;index" json:"activity_id,omitempty"`
	MachineID   uint       `gorm:"not null;index" json:"machine_id"`
	Head        int        `gorm:"not null" json:"head"`
	Kind        string     `gorm:"size:64;not null;index" json:"kind"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	StartedAt   time.Time  `gorm:"not null;index" json:"started_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy  *string    `gorm:"size:36" json:"resolved_by,omitempty"`
	DowntimeSec int64      `gorm:"not null;default:0" json:"downtime_sec"`
	CreatedAt   time.Time  `json:"created_at"`

	Machine *Machine `gorm:"foreignKey:MachineID" json:"machine,omitempty"`
}

// Open reports whether the problem is unresolved.
func (p *HeadProblem) Open() bool {
	return p.ResolvedAt == nil
}
