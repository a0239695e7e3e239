package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers, limit *rateLimiter, metrics http.Handler) {
	router.GET("/healthz", h.health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")

	acts := api.Group("/activities")
	acts.POST("/start", limit.middleware(), h.start)
	acts.GET("/:id", h.getActivity)
	acts.POST("/:id/pieces", h.registerPiece)
	acts.GET("/:id/pieces", h.pieces)
	acts.POST("/:id/pause", h.pause)
	acts.POST("/:id/resume", h.resume)
	acts.POST("/:id/finish", limit.middleware(), h.finish)
	acts.POST("/:id/problems", h.reportProblem)
	acts.PUT("/:id/heads", h.changeHeads)

	ops := api.Group("/operators")
	ops.GET("", h.listOperators)
	ops.POST("/identify", h.identify)
	ops.GET("/:id/activity", h.current)
	ops.POST("/:id/force-close", h.forceClose)
	ops.GET("/:id/audit", h.audit)

	api.GET("/processes", h.listProcesses)
	api.GET("/work-orders", h.listWorkOrders)

	machines := api.Group("/machines")
	machines.GET("", h.listMachines)
	machines.POST("", h.createMachine)
	machines.GET("/:id", h.getMachine)
	machines.PUT("/:id", h.updateMachine)
	machines.DELETE("/:id", h.deleteMachine)
	machines.PUT("/:id/active", h.setMachineActive)
	machines.GET("/:id/heads", h.machineHeads)
	machines.PUT("/:id/heads/:head", h.setHeadStatus)

	api.GET("/problems", h.listProblems)
	api.POST("/problems/:id/resolve", h.resolveProblem)

	reports := api.Group("/reports")
	reports.GET("/overview", h.overview)
	reports.GET("/processes", h.processes)
	reports.GET("/production", h.production)
	reports.GET("/live", h.live)
	reports.GET("/machines", h.machineEfficiency)
	reports.GET("/head-problems", h.headProblems)
	reports.GET("/problem-kinds", h.problemKinds)
	reports.GET("/machine-floor", h.machineFloor)
}
