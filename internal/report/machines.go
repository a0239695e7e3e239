package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/zulandar/shopclock/internal/models"
	"gorm.io/gorm"
)

// MachineEfficiency is one machine's use over closed activities.
type MachineEfficiency struct {
	MachineID         uint    `json:"machine_id"`
	Machine           string  `json:"machine"`
	Kind              string  `json:"kind"`
	Activities        int     `json:"activities"`
	MeanEfficiencyPct float64 `json:"mean_efficiency_pct"`
	Units             int     `json:"units"`
	ElapsedSec        int64   `json:"elapsed_sec"`
	Problems          int     `json:"problems"`
	DowntimeSec       int64   `json:"downtime_sec"`
}

// EfficiencyReport lists machine efficiency with floor totals.
type EfficiencyReport struct {
	Range    Range               `json:"range"`
	Machines []MachineEfficiency `json:"machines"`
	Totals   MachineEfficiency   `json:"totals"`
}

// Efficiency aggregates closed activities run on machines whose end falls
// in r. Mean efficiency is over activities that recorded heads in use. A
// zero machineID covers every machine.
func Efficiency(ctx context.Context, gdb *gorm.DB, r Range, machineID uint) (*EfficiencyReport, error) {
	q := gdb.WithContext(ctx).Preload("Machine").
		Where("machine_id IS NOT NULL AND ended_at IS NOT NULL AND ended_at >= ? AND ended_at < ?", r.From, r.To)
	if machineID != 0 {
		q = q.Where("machine_id = ?", machineID)
	}
	var acts []models.Activity
	if err := q.Find(&acts).Error; err != nil {
		return nil, fmt.Errorf("report: load machine activities: %w", err)
	}

	type acc struct {
		MachineEfficiency
		effSum, effN int
	}
	add := func(m *acc, a models.Activity) {
		m.Activities++
		if a.EfficiencyPct != nil {
			m.effSum += *a.EfficiencyPct
			m.effN++
		}
		if a.RealizedQty != nil {
			m.Units += *a.RealizedQty
		} else {
			m.Units += a.PiecesDone
		}
		if a.TotalElapsedSec != nil {
			m.ElapsedSec += *a.TotalElapsedSec
		}
		m.Problems += a.ProblemCount
		m.DowntimeSec += a.ProblemDowntimeSec
	}
	mean := func(m *acc) float64 {
		if m.effN == 0 {
			return 0
		}
		return math.Round(float64(m.effSum) / float64(m.effN))
	}

	byMachine := map[uint]*acc{}
	total := &acc{}
	for _, a := range acts {
		m, ok := byMachine[*a.MachineID]
		if !ok {
			m = &acc{}
			m.MachineID = *a.MachineID
			if a.Machine != nil {
				m.Machine, m.Kind = a.Machine.Name, a.Machine.Kind
			}
			byMachine[*a.MachineID] = m
		}
		add(m, a)
		add(total, a)
	}

	rep := &EfficiencyReport{Range: r, Machines: make([]MachineEfficiency, 0, len(byMachine))}
	for _, m := range byMachine {
		m.MeanEfficiencyPct = mean(m)
		rep.Machines = append(rep.Machines, m.MachineEfficiency)
	}
	sort.Slice(rep.Machines, func(i, j int) bool { return rep.Machines[i].MachineID < rep.Machines[j].MachineID })
	total.MeanEfficiencyPct = mean(total)
	rep.Totals = total.MachineEfficiency
	return rep, nil
}

// HeadStats counts problems on one machine head.
type HeadStats struct {
	MachineID   uint   `json:"machine_id"`
	Machine     string `json:"machine"`
	Head        int    `json:"head"`
	Problems    int    `json:"problems"`
	Open        int    `json:"open"`
	DowntimeSec int64  `json:"downtime_sec"`
	LastKind    string `json:"last_kind"`
}

// KindStats counts problems of one kind.
type KindStats struct {
	Kind        string `json:"kind"`
	Problems    int    `json:"problems"`
	DowntimeSec int64  `json:"downtime_sec"`
}

// HeadProblemReport lists head problems per head and per kind, most
// affected first.
type HeadProblemReport struct {
	Range         Range       `json:"range"`
	Heads         []HeadStats `json:"heads"`
	ByKind        []KindStats `json:"by_kind"`
	Problems      int         `json:"problems"`
	DowntimeHours float64     `json:"downtime_hours"`
	AffectedHeads int         `json:"affected_heads"`
}

// HeadProblems aggregates problems started in r. Zero machineID and empty
// kind are ignored.
func HeadProblems(ctx context.Context, gdb *gorm.DB, r Range, machineID uint, kind string) (*HeadProblemReport, error) {
	q := gdb.WithContext(ctx).Preload("Machine").
		Where("started_at >= ? AND started_at < ?", r.From, r.To)
	if machineID != 0 {
		q = q.Where("machine_id = ?", machineID)
	}
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var problems []models.HeadProblem
	if err := q.Order("started_at, id").Find(&problems).Error; err != nil {
		return nil, fmt.Errorf("report: load head problems: %w", err)
	}

	type key struct {
		machine uint
		head    int
	}
	heads := map[key]*HeadStats{}
	kinds := map[string]*KindStats{}
	rep := &HeadProblemReport{Range: r, Heads: []HeadStats{}, ByKind: []KindStats{}}
	var downtime int64
	for _, p := range problems {
		k := key{p.MachineID, p.Head}
		h, ok := heads[k]
		if !ok {
			h = &HeadStats{MachineID: p.MachineID, Head: p.Head}
			if p.Machine != nil {
				h.Machine = p.Machine.Name
			}
			heads[k] = h
		}
		h.Problems++
		if p.Open() {
			h.Open++
		}
		h.DowntimeSec += p.DowntimeSec
		h.LastKind = p.Kind

		ks, ok := kinds[p.Kind]
		if !ok {
			ks = &KindStats{Kind: p.Kind}
			kinds[p.Kind] = ks
		}
		ks.Problems++
		ks.DowntimeSec += p.DowntimeSec
		downtime += p.DowntimeSec
	}

	for _, h := range heads {
		rep.Heads = append(rep.Heads, *h)
	}
	sort.Slice(rep.Heads, func(i, j int) bool {
		a, b := rep.Heads[i], rep.Heads[j]
		if a.Problems != b.Problems {
			return a.Problems > b.Problems
		}
		if a.MachineID != b.MachineID {
			return a.MachineID < b.MachineID
		}
		return a.Head < b.Head
	})
	for _, k := range kinds {
		rep.ByKind = append(rep.ByKind, *k)
	}
	sort.Slice(rep.ByKind, func(i, j int) bool {
		if rep.ByKind[i].Problems != rep.ByKind[j].Problems {
			return rep.ByKind[i].Problems > rep.ByKind[j].Problems
		}
		return rep.ByKind[i].Kind < rep.ByKind[j].Kind
	})
	rep.Problems = len(problems)
	rep.DowntimeHours = math.Round(float64(downtime)/3600*100) / 100
	rep.AffectedHeads = len(rep.Heads)
	return rep, nil
}

// ProblemKinds lists every problem kind ever reported with its totals, most
// frequent first. Terminals offer it as the kind picker.
func ProblemKinds(ctx context.Context, gdb *gorm.DB) ([]KindStats, error) {
	kinds := []KindStats{}
	err := gdb.WithContext(ctx).Model(&models.HeadProblem{}).
		Select("kind, COUNT(*) AS problems, COALESCE(SUM(downtime_sec), 0) AS downtime_sec").
		Group("kind").
		Order("problems DESC, kind").
		Scan(&kinds).Error
	if err != nil {
		return nil, fmt.Errorf("report: problem kinds: %w", err)
	}
	return kinds, nil
}

// FloorMachine is the current state of one active machine.
type FloorMachine struct {
	MachineID     uint    `json:"machine_id"`
	Machine       string  `json:"machine"`
	Kind          string  `json:"kind"`
	Heads         int     `json:"heads"`
	ActivityID    *string `json:"activity_id"`
	Operator      string  `json:"operator,omitempty"`
	HeadsInUse    []int   `json:"heads_in_use"`
	EfficiencyPct *int    `json:"efficiency_pct"`
	OpenProblems  int     `json:"open_problems"`
	ProblemHeads  []int   `json:"problem_heads"`
}

// MachineFloorReport is the machine dashboard: what runs now and how the
// day went so far.
type MachineFloorReport struct {
	At       time.Time         `json:"at"`
	Machines []FloorMachine    `json:"machines"`
	Running  int               `json:"running"`
	Today    MachineEfficiency `json:"today"`
}

// MachineFloor reports every active machine with its open activity and
// unresolved problems, plus the efficiency totals of the day holding now.
func MachineFloor(ctx context.Context, gdb *gorm.DB, now time.Time) (*MachineFloorReport, error) {
	var machines []models.Machine
	if err := gdb.WithContext(ctx).Where("active = ?", true).Order("id").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("report: load machines: %w", err)
	}
	var acts []models.Activity
	err := gdb.WithContext(ctx).Preload("Operator").
		Where("machine_id IS NOT NULL AND status IN ?", []string{models.StatusActive, models.StatusPaused}).
		Order("started_at").
		Find(&acts).Error
	if err != nil {
		return nil, fmt.Errorf("report: load machine activities: %w", err)
	}
	var open []models.HeadProblem
	if err := gdb.WithContext(ctx).Where("resolved_at IS NULL").Order("machine_id, head").Find(&open).Error; err != nil {
		return nil, fmt.Errorf("report: load open problems: %w", err)
	}

	rep := &MachineFloorReport{At: now, Machines: make([]FloorMachine, 0, len(machines))}
	index := map[uint]int{}
	for i, m := range machines {
		index[m.ID] = i
		rep.Machines = append(rep.Machines, FloorMachine{
			MachineID:    m.ID,
			Machine:      m.Name,
			Kind:         m.Kind,
			Heads:        m.Heads,
			HeadsInUse:   []int{},
			ProblemHeads: []int{},
		})
	}
	// Later starts win when a machine carries more than one open activity.
	for _, a := range acts {
		i, ok := index[*a.MachineID]
		if !ok {
			continue
		}
		fm := &rep.Machines[i]
		if fm.ActivityID == nil {
			rep.Running++
		}
		id := a.ID
		fm.ActivityID = &id
		fm.Operator = ""
		if a.Operator != nil {
			fm.Operator = a.Operator.Name
		}
		fm.HeadsInUse = append([]int{}, a.HeadsInUse...)
		fm.EfficiencyPct = a.EfficiencyPct
	}
	for _, p := range open {
		i, ok := index[p.MachineID]
		if !ok {
			continue
		}
		rep.Machines[i].OpenProblems++
		rep.Machines[i].ProblemHeads = append(rep.Machines[i].ProblemHeads, p.Head)
	}

	eff, err := Efficiency(ctx, gdb, Day(now), 0)
	if err != nil {
		return nil, err
	}
	rep.Today = eff.Totals
	return rep, nil
}
