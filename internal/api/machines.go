package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/catalog"
	"github.com/zulandar/shopclock/internal/report"
)

type machineRequest struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Heads int    `json:"heads"`
}

type machineUpdateRequest struct {
	Name  *string `json:"name"`
	Heads *int    `json:"heads"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

type headStatusRequest struct {
	Status  string `json:"status"`
	Problem string `json:"problem"`
}

type problemRequest struct {
	Head        int    `json:"head"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

type headsRequest struct {
	HeadsInUse []int `json:"heads_in_use"`
}

// uintParam parses a numeric path or query value, writing a 400 on failure.
// An empty query value yields zero.
func uintParam(c *gin.Context, name, value string) (uint, bool) {
	if value == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil || n == 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return uint(n), true
}

func machineID(c *gin.Context) (uint, bool) {
	if c.Param("id") == "" {
		badRequest(c, "machine id is required")
		return 0, false
	}
	return uintParam(c, "machine id", c.Param("id"))
}

func (h *handlers) listMachines(c *gin.Context) {
	ms, err := catalog.ListMachines(c.Request.Context(), h.db, catalog.MachineFilters{
		All:  c.Query("all") == "true",
		Kind: c.Query("kind"),
	})
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, ms)
}

func (h *handlers) createMachine(c *gin.Context) {
	var req machineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	m, err := catalog.CreateMachine(c.Request.Context(), h.db, catalog.MachineOpts{
		ID: req.ID, Name: req.Name, Kind: req.Kind, Heads: req.Heads,
	})
	if err != nil {
		h.catalogFailed(c, err, "machine")
		return
	}
	ok(c, http.StatusCreated, m)
}

func (h *handlers) getMachine(c *gin.Context) {
	id, valid := machineID(c)
	if !valid {
		return
	}
	m, err := catalog.GetMachine(c.Request.Context(), h.db, id)
	if err != nil {
		h.catalogFailed(c, err, "machine")
		return
	}
	ok(c, http.StatusOK, m)
}

func (h *handlers) updateMachine(c *gin.Context) {
	id, valid := machineID(c)
	if !valid {
		return
	}
	var req machineUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	m, err := catalog.UpdateMachine(c.Request.Context(), h.db, id, catalog.MachineUpdate{Name: req.Name, Heads: req.Heads})
	if err != nil {
		h.catalogFailed(c, err, "machine")
		return
	}
	ok(c, http.StatusOK, m)
}

func (h *handlers) setMachineActive(c *gin.Context) {
	id, valid := machineID(c)
	if !valid {
		return
	}
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		badRequest(c, "active is required")
		return
	}
	if err := catalog.SetMachineActive(c.Request.Context(), h.db, id, *req.Active); err != nil {
		h.catalogFailed(c, err, "machine")
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

func (h *handlers) deleteMachine(c *gin.Context) {
	id, valid := machineID(c)
	if !valid {
		return
	}
	if err := catalog.DeleteMachine(c.Request.Context(), h.db, id); err != nil {
		h.catalogFailed(c, err, "machine")
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": id})
}

func (h *handlers) machineHeads(c *gin.Context) {
	id, valid := machineID(c)
	if !valid {
		return
	}
	heads, err := catalog.ListHeads(c.Request.Context(), h.db, id)
	if err != nil {
		h.catalogFailed(c, err, "machine")
		return
	}
	ok(c, http.StatusOK, heads)
}

func (h *handlers) setHeadStatus(c *gin.Context) {
	id, valid := machineID(c)
	if !valid {
		return
	}
	head, err := strconv.Atoi(c.Param("head"))
	if err != nil || head < 1 {
		badRequest(c, "head must be a positive integer")
		return
	}
	var req headStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	mh, err := catalog.SetHeadStatus(c.Request.Context(), h.db, id, head, req.Status, req.Problem, h.now())
	if err != nil {
		h.catalogFailed(c, err, "machine head")
		return
	}
	ok(c, http.StatusOK, mh)
}

func (h *handlers) reportProblem(c *gin.Context) {
	var req problemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.engine.ReportProblem(c.Request.Context(), activity.ReportProblemCmd{
		ActivityID:  c.Param("id"),
		Head:        req.Head,
		Kind:        req.Kind,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

func (h *handlers) changeHeads(c *gin.Context) {
	var req headsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := h.engine.ChangeHeads(c.Request.Context(), activity.ChangeHeadsCmd{
		ActivityID: c.Param("id"),
		HeadsInUse: req.HeadsInUse,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (h *handlers) listProblems(c *gin.Context) {
	mid, valid := uintParam(c, "machine_id", c.Query("machine_id"))
	if !valid {
		return
	}
	f := activity.ProblemFilter{MachineID: mid, ActivityID: c.Query("activity_id"), Limit: 100}
	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "resolved must be true or false")
			return
		}
		f.Resolved = &resolved
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			badRequest(c, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}
	ps, err := h.engine.Problems(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ps)
}

func (h *handlers) resolveProblem(c *gin.Context) {
	id, valid := uintParam(c, "problem id", c.Param("id"))
	if !valid {
		return
	}
	var req resolveRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.engine.ResolveProblem(c.Request.Context(), activity.ResolveProblemCmd{
		ProblemID:  id,
		ResolvedBy: req.ResolvedBy,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h *handlers) machineEfficiency(c *gin.Context) {
	r, valid := h.reportRange(c)
	if !valid {
		return
	}
	mid, valid := uintParam(c, "machine_id", c.Query("machine_id"))
	if !valid {
		return
	}
	rep, err := report.Efficiency(c.Request.Context(), h.db, r, mid)
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

func (h *handlers) headProblems(c *gin.Context) {
	r, valid := h.reportRange(c)
	if !valid {
		return
	}
	mid, valid := uintParam(c, "machine_id", c.Query("machine_id"))
	if !valid {
		return
	}
	rep, err := report.HeadProblems(c.Request.Context(), h.db, r, mid, c.Query("kind"))
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

func (h *handlers) problemKinds(c *gin.Context) {
	kinds, err := report.ProblemKinds(c.Request.Context(), h.db)
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, kinds)
}

func (h *handlers) machineFloor(c *gin.Context) {
	rep, err := report.MachineFloor(c.Request.Context(), h.db, h.now())
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
