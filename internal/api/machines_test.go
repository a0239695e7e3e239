package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/zulandar/shopclock/internal/models"
	"github.com/zulandar/shopclock/internal/report"
)

func intPtr(v int) *int { return &v }

func (s *testServer) createMachine(t *testing.T, req machineRequest) models.Machine {
	t.Helper()
	w, resp := s.do(t, http.MethodPost, "/api/machines", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create machine: status = %d body = %s", w.Code, w.Body.String())
	}
	var m models.Machine
	if err := json.Unmarshal(resp.Data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMachineRoutes(t *testing.T) {
	s := newTestServer(t, 0)
	m := s.createMachine(t, machineRequest{ID: 3, Name: "Bordadeira 3", Heads: 4})
	if m.ID != 3 || len(m.HeadStates) != 4 {
		t.Errorf("machine = %+v", m)
	}
	s.createMachine(t, machineRequest{Name: "Prensa", Kind: models.MachinePress})

	if w, resp := s.do(t, http.MethodPost, "/api/machines", machineRequest{Name: "Bordadeira 3"}); w.Code != http.StatusConflict || resp.Message != "machine already exists" {
		t.Errorf("duplicate: status = %d resp = %+v", w.Code, resp)
	}
	if w, resp := s.do(t, http.MethodPost, "/api/machines", machineRequest{Name: "X", Kind: "laser"}); w.Code != http.StatusBadRequest || resp.Error != "invalid_argument" {
		t.Errorf("bad kind: status = %d resp = %+v", w.Code, resp)
	}

	w, resp := s.do(t, http.MethodGet, "/api/machines?kind=press", nil)
	var ms []models.Machine
	if err := json.Unmarshal(resp.Data, &ms); err != nil || w.Code != http.StatusOK || len(ms) != 1 || ms[0].Name != "Prensa" {
		t.Errorf("list presses: status = %d machines = %+v err = %v", w.Code, ms, err)
	}

	w, resp = s.do(t, http.MethodPut, "/api/machines/3/heads/2", headStatusRequest{Status: models.HeadMaintenance})
	var h models.MachineHead
	if err := json.Unmarshal(resp.Data, &h); err != nil || w.Code != http.StatusOK {
		t.Fatalf("set head: status = %d err = %v body = %s", w.Code, err, w.Body.String())
	}
	if h.Status != models.HeadMaintenance || h.LastMaintenance == nil || !h.LastMaintenance.Equal(t0) {
		t.Errorf("head = %+v", h)
	}
	if w, resp := s.do(t, http.MethodPut, "/api/machines/3/heads/9", headStatusRequest{Status: models.HeadOK}); w.Code != http.StatusNotFound || resp.Message != "machine head not found" {
		t.Errorf("unknown head: status = %d resp = %+v", w.Code, resp)
	}
	if w, _ := s.do(t, http.MethodPut, "/api/machines/3/heads/x", headStatusRequest{Status: models.HeadOK}); w.Code != http.StatusBadRequest {
		t.Errorf("bad head: status = %d", w.Code)
	}

	w, resp = s.do(t, http.MethodGet, "/api/machines/3/heads", nil)
	var heads []models.MachineHead
	if err := json.Unmarshal(resp.Data, &heads); err != nil || len(heads) != 4 || heads[1].Status != models.HeadMaintenance {
		t.Errorf("heads: status = %d heads = %+v err = %v", w.Code, heads, err)
	}
	if w, _ := s.do(t, http.MethodGet, "/api/machines/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", w.Code)
	}
	if w, resp := s.do(t, http.MethodGet, "/api/machines/99", nil); w.Code != http.StatusNotFound || resp.Message != "machine not found" {
		t.Errorf("unknown machine: status = %d resp = %+v", w.Code, resp)
	}

	w, resp = s.do(t, http.MethodPut, "/api/machines/3", map[string]any{"name": "Bordadeira Sul", "heads": 2})
	if err := json.Unmarshal(resp.Data, &m); err != nil || w.Code != http.StatusOK || m.Name != "Bordadeira Sul" || len(m.HeadStates) != 2 {
		t.Errorf("update: status = %d machine = %+v err = %v", w.Code, m, err)
	}
	if w, _ := s.do(t, http.MethodPut, "/api/machines/3", map[string]any{"name": "Prensa"}); w.Code != http.StatusConflict {
		t.Errorf("rename to taken name: status = %d", w.Code)
	}

	if w, _ := s.do(t, http.MethodPut, "/api/machines/3/active", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("active missing: status = %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodPut, "/api/machines/3/active", map[string]any{"active": false}); w.Code != http.StatusOK {
		t.Errorf("disable: status = %d", w.Code)
	}
	if w, _ := s.do(t, http.MethodDelete, "/api/machines/3", nil); w.Code != http.StatusOK {
		t.Errorf("delete: status = %d", w.Code)
	}
}

func TestHeadProblemFlow(t *testing.T) {
	s := newTestServer(t, 0)
	s.createMachine(t, machineRequest{ID: 1, Name: "Bordadeira 1", Heads: 6})

	mid := uint(1)
	w, resp := s.do(t, http.MethodPost, "/api/activities/start", startRequest{
		OperatorID: "op-1", ProcessID: "proc-1", WorkOrderID: "of-1", PlannedQty: 10,
		MachineID: &mid, HeadsInUse: []int{1, 2, 3},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start: status = %d body = %s", w.Code, w.Body.String())
	}
	var a models.Activity
	if err := json.Unmarshal(resp.Data, &a); err != nil {
		t.Fatal(err)
	}
	if a.EfficiencyPct == nil || *a.EfficiencyPct != 50 {
		t.Errorf("efficiency = %v, want 50", a.EfficiencyPct)
	}

	w, resp = s.do(t, http.MethodPost, "/api/activities/"+a.ID+"/problems", problemRequest{Head: 2, Kind: "linha partida"})
	if w.Code != http.StatusCreated {
		t.Fatalf("report problem: status = %d body = %s", w.Code, w.Body.String())
	}
	var p models.HeadProblem
	if err := json.Unmarshal(resp.Data, &p); err != nil {
		t.Fatal(err)
	}
	if w, resp := s.do(t, http.MethodPost, "/api/activities/"+a.ID+"/problems", problemRequest{Head: 2, Kind: "agulha"}); w.Code != http.StatusConflict || resp.Error != "conflict" {
		t.Errorf("second problem: status = %d resp = %+v", w.Code, resp)
	}
	if w, resp := s.do(t, http.MethodPut, "/api/activities/"+a.ID+"/heads", headsRequest{HeadsInUse: []int{2, 4}}); w.Code != http.StatusConflict {
		t.Errorf("change to broken head: status = %d resp = %+v", w.Code, resp)
	}
	if w, _ := s.do(t, http.MethodDelete, "/api/machines/1", nil); w.Code != http.StatusConflict {
		t.Errorf("delete machine in use: status = %d", w.Code)
	}

	w, resp = s.do(t, http.MethodGet, "/api/problems?resolved=false&machine_id=1", nil)
	var open []models.HeadProblem
	if err := json.Unmarshal(resp.Data, &open); err != nil || w.Code != http.StatusOK || len(open) != 1 {
		t.Errorf("open problems: status = %d problems = %+v err = %v", w.Code, open, err)
	}

	if w, _ := s.do(t, http.MethodGet, "/api/problems?resolved=maybe", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad resolved: status = %d", w.Code)
	}

	w, resp = s.do(t, http.MethodGet, "/api/reports/machine-floor", nil)
	var floor report.MachineFloorReport
	if err := json.Unmarshal(resp.Data, &floor); err != nil || w.Code != http.StatusOK {
		t.Fatalf("machine floor: status = %d err = %v", w.Code, err)
	}
	if floor.Running != 1 || len(floor.Machines) != 1 || floor.Machines[0].OpenProblems != 1 || floor.Machines[0].ProblemHeads[0] != 2 {
		t.Errorf("machine floor = %+v", floor)
	}

	s.clock.Advance(5 * time.Minute)
	w, resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/problems/%d/resolve", p.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve: status = %d body = %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(resp.Data, &p); err != nil || p.DowntimeSec != 300 {
		t.Errorf("resolved = %+v err = %v", p, err)
	}
	if w, resp := s.do(t, http.MethodPost, fmt.Sprintf("/api/problems/%d/resolve", p.ID), nil); w.Code != http.StatusConflict || resp.Error != "invalid_state" {
		t.Errorf("resolve twice: status = %d resp = %+v", w.Code, resp)
	}

	w, resp = s.do(t, http.MethodPut, "/api/activities/"+a.ID+"/heads", headsRequest{HeadsInUse: []int{1, 2, 3, 4, 5, 6}})
	if err := json.Unmarshal(resp.Data, &a); err != nil || w.Code != http.StatusOK || a.EfficiencyPct == nil || *a.EfficiencyPct != 100 {
		t.Errorf("change heads: status = %d activity = %+v err = %v", w.Code, a, err)
	}

	s.clock.Advance(25 * time.Minute)
	if w, _ := s.do(t, http.MethodPost, "/api/activities/"+a.ID+"/finish", finishRequest{RealizedQty: intPtr(10)}); w.Code != http.StatusOK {
		t.Fatalf("finish: status = %d", w.Code)
	}

	w, resp = s.do(t, http.MethodGet, "/api/reports/machines?period=today", nil)
	var eff report.EfficiencyReport
	if err := json.Unmarshal(resp.Data, &eff); err != nil || w.Code != http.StatusOK {
		t.Fatalf("machines report: status = %d err = %v", w.Code, err)
	}
	if len(eff.Machines) != 1 || eff.Machines[0].Problems != 1 || eff.Machines[0].DowntimeSec != 300 || eff.Machines[0].MeanEfficiencyPct != 100 {
		t.Errorf("efficiency report = %+v", eff.Machines)
	}

	w, resp = s.do(t, http.MethodGet, "/api/reports/head-problems?period=today&machine_id=1", nil)
	var hp report.HeadProblemReport
	if err := json.Unmarshal(resp.Data, &hp); err != nil || w.Code != http.StatusOK {
		t.Fatalf("head problems report: status = %d err = %v", w.Code, err)
	}
	if hp.Problems != 1 || len(hp.Heads) != 1 || hp.Heads[0].Head != 2 {
		t.Errorf("head problems report = %+v", hp)
	}
	if w, _ := s.do(t, http.MethodGet, "/api/reports/head-problems?machine_id=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad machine_id: status = %d", w.Code)
	}

	w, resp = s.do(t, http.MethodGet, "/api/reports/problem-kinds", nil)
	var kinds []report.KindStats
	if err := json.Unmarshal(resp.Data, &kinds); err != nil || w.Code != http.StatusOK || len(kinds) != 1 || kinds[0].Kind != "linha partida" {
		t.Errorf("problem kinds: status = %d kinds = %+v err = %v", w.Code, kinds, err)
	}
}
