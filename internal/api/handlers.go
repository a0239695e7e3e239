package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/shopclock/internal/activity"
	"github.com/zulandar/shopclock/internal/db"
	"github.com/zulandar/shopclock/internal/logger"
	"github.com/zulandar/shopclock/internal/report"
	"gorm.io/gorm"
)

// DeviceIDHeader identifies the shop-floor terminal when the body omits it.
const DeviceIDHeader = "X-Device-ID"

type handlers struct {
	db     *gorm.DB
	engine *activity.Engine
	log    *slog.Logger
	now    func() time.Time
}

type startRequest struct {
	OperatorID  string `json:"operator_id"`
	ProcessID   string `json:"process_id"`
	WorkOrderID string `json:"work_order_id"`
	PlannedQty  int    `json:"planned_qty"`
	DeviceID    string `json:"device_id"`
	MachineID   *uint  `json:"machine_id"`
	HeadsInUse  []int  `json:"heads_in_use"`
}

type pieceRequest struct {
	Sequence      int   `json:"sequence"`
	CumulativeSec int64 `json:"cumulative_sec"`
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

type finishRequest struct {
	RealizedQty *int   `json:"realized_qty"`
	ScrapQty    int    `json:"scrap_qty"`
	ScrapReason string `json:"scrap_reason"`
}

// bindOptional binds a JSON body when one is present. A chunked request
// with an empty body has no Content-Length, so EOF also means no body.
func bindOptional(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *handlers) health(c *gin.Context) {
	if err := db.Ping(h.db); err != nil {
		logger.FromContext(c.Request.Context(), h.log).Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, envelope{Error: "unavailable", Message: "database unreachable"})
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = c.GetHeader(DeviceIDHeader)
	}
	a, err := h.engine.Start(c.Request.Context(), activity.StartCmd{
		OperatorID:  req.OperatorID,
		ProcessID:   req.ProcessID,
		WorkOrderID: req.WorkOrderID,
		PlannedQty:  req.PlannedQty,
		DeviceID:    req.DeviceID,
		MachineID:   req.MachineID,
		HeadsInUse:  req.HeadsInUse,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

func (h *handlers) getActivity(c *gin.Context) {
	a, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (h *handlers) registerPiece(c *gin.Context) {
	var req pieceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.engine.RegisterPiece(c.Request.Context(), activity.RegisterPieceCmd{
		ActivityID:    c.Param("id"),
		Sequence:      req.Sequence,
		CumulativeSec: req.CumulativeSec,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

func (h *handlers) pieces(c *gin.Context) {
	ps, err := h.engine.Pieces(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ps)
}

func (h *handlers) pause(c *gin.Context) {
	var req pauseRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	a, err := h.engine.Pause(c.Request.Context(), activity.PauseCmd{ActivityID: c.Param("id"), Reason: req.Reason})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (h *handlers) resume(c *gin.Context) {
	a, err := h.engine.Resume(c.Request.Context(), activity.ResumeCmd{ActivityID: c.Param("id")})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (h *handlers) finish(c *gin.Context) {
	var req finishRequest
	if err := bindOptional(c, &req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	res, err := h.engine.Finish(c.Request.Context(), activity.FinishCmd{
		ActivityID:  c.Param("id"),
		RealizedQty: req.RealizedQty,
		ScrapQty:    req.ScrapQty,
		ScrapReason: req.ScrapReason,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handlers) current(c *gin.Context) {
	a, err := h.engine.Current(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if a == nil {
		c.JSON(http.StatusOK, envelope{Success: true, Message: "no open activity"})
		return
	}
	ok(c, http.StatusOK, a)
}

func (h *handlers) forceClose(c *gin.Context) {
	ids, err := h.engine.ForceCloseAll(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	logger.FromContext(c.Request.Context(), h.log).Warn("force-closed activities",
		"operator_id", c.Param("id"), "count", len(ids))
	ok(c, http.StatusOK, gin.H{"closed": ids})
}

func (h *handlers) audit(c *gin.Context) {
	rep, err := h.engine.Audit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}

// reportRange parses ?period, ?from and ?to, writing a 400 on failure.
func (h *handlers) reportRange(c *gin.Context) (report.Range, bool) {
	r, err := report.ParseRange(c.Query("period"), c.Query("from"), c.Query("to"), h.now())
	if err != nil {
		badRequest(c, err.Error())
		return report.Range{}, false
	}
	return r, true
}

// reportFailed logs and writes a read query failure.
func (h *handlers) reportFailed(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context(), h.log).Error("report failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, envelope{Error: "internal", Message: "internal error"})
}

// warnDiscarded logs excluded non-positive piece durations.
func (h *handlers) warnDiscarded(c *gin.Context, n int) {
	if n > 0 {
		logger.FromContext(c.Request.Context(), h.log).Warn("non-positive piece durations excluded", "count", n)
	}
}

func (h *handlers) overview(c *gin.Context) {
	r, valid := h.reportRange(c)
	if !valid {
		return
	}
	ov, err := report.BuildOverview(c.Request.Context(), h.db, r)
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	h.warnDiscarded(c, ov.Discarded)
	ok(c, http.StatusOK, ov)
}

func (h *handlers) processes(c *gin.Context) {
	r, valid := h.reportRange(c)
	if !valid {
		return
	}
	rep, err := report.ProcessAnalysis(c.Request.Context(), h.db, r)
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	h.warnDiscarded(c, rep.Discarded)
	ok(c, http.StatusOK, rep)
}

func (h *handlers) production(c *gin.Context) {
	rep, err := report.Production(c.Request.Context(), h.db, c.Query("work_order_id"))
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	h.warnDiscarded(c, rep.Discarded)
	ok(c, http.StatusOK, rep)
}

func (h *handlers) live(c *gin.Context) {
	sessions, err := report.Live(c.Request.Context(), h.db, h.now())
	if err != nil {
		h.reportFailed(c, err)
		return
	}
	ok(c, http.StatusOK, sessions)
}
