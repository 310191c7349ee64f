// Package httpapi exposes the case store actions and queries over HTTP.
//
// Action endpoints answer with {"data": ..., "violations": [...]} where
// violations lists non-blocking rule findings. Blocked actions answer 409
// with the blocking violations and leave the store untouched.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	blobcore "whalewatcher/internal/blob/core"
	"whalewatcher/internal/core"
	"whalewatcher/pkg/domain"
)

// ActorHeader names the user an action is attributed to. Requests without it
// act as the system actor.
const ActorHeader = "X-Actor"

// Options configures the router.
type Options struct {
	Logger  *zap.Logger
	Metrics http.Handler
}

// Handler serves the case store API.
type Handler struct {
	svc    *core.Service
	logger *zap.Logger
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

type actionResponse struct {
	Data       any                `json:"data"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// NewRouter builds a gin engine with every route registered.
func NewRouter(svc *core.Service, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{svc: svc, logger: logger}
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog(), actorMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

// RegisterRoutes wires the API under rg.
//
//	GET    /session                          session pointer and demo flag
//	PUT    /session/selected-case            select or clear the current case
//	GET    /snapshot                         every collection
//	GET    /audit                            audit trail of all cases
//	GET    /cases                            work queue
//	GET    /cases/export                     work queue as XLSX
//	GET    /cases/:id                        one case
//	GET    /cases/:id/{gaps,evidence,documents,fields,notifications,audit}
//	POST   /cases/:id/advance
//	POST   /cases/:id/demographics           {"missing": bool}
//	POST   /cases/:id/demographics/verify
//	POST   /cases/:id/evidence               {"type": "MVR"}
//	POST   /cases/:id/evidence/receive       {"type": "MVR"}
//	POST   /cases/:id/evidence/failure       {"failed": bool}
//	POST   /cases/:id/gaps
//	POST   /cases/:id/notifications
//	POST   /cases/:id/documents              multipart upload
//	POST   /cases/:id/complete
//	PATCH  /gaps/:id                         {"status": "requested"}
//	POST   /gaps/:id/close
//	POST   /evidence/:id/retry
//	POST   /evidence/:id/fail                {"reason": "...", "open_gap": bool}
//	POST   /documents/:id/process            {"fields": [...]}
//	GET    /documents/:id/artifact
//	POST   /fields/:id/override              {"value": "...", "reason": "..."}
//	POST   /notifications/:id/read
//	POST   /demo/reset
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/session", h.getSession)
	rg.PUT("/session/selected-case", h.selectCase)
	rg.GET("/snapshot", h.getSnapshot)
	rg.GET("/audit", h.listAllAudit)
	rg.POST("/demo/reset", h.resetDemo)

	cases := rg.Group("/cases")
	cases.GET("", h.listCases)
	cases.GET("/export", h.exportCases)
	cases.GET("/:id", h.getCase)
	cases.GET("/:id/gaps", h.listGaps)
	cases.GET("/:id/evidence", h.listEvidence)
	cases.GET("/:id/documents", h.listDocuments)
	cases.GET("/:id/fields", h.listFields)
	cases.GET("/:id/notifications", h.listNotifications)
	cases.GET("/:id/audit", h.listAudit)
	cases.POST("/:id/advance", h.advanceStage)
	cases.POST("/:id/demographics", h.toggleDemographics)
	cases.POST("/:id/demographics/verify", h.verifyDemographics)
	cases.POST("/:id/evidence", h.orderEvidence)
	cases.POST("/:id/evidence/receive", h.receiveEvidence)
	cases.POST("/:id/evidence/failure", h.toggleEvidenceFailure)
	cases.POST("/:id/gaps", h.addGap)
	cases.POST("/:id/notifications", h.addNotification)
	cases.POST("/:id/documents", h.ingestDocument)
	cases.POST("/:id/complete", h.completeDemo)

	rg.PATCH("/gaps/:id", h.updateGapStatus)
	rg.POST("/gaps/:id/close", h.closeGap)
	rg.POST("/evidence/:id/retry", h.retryEvidence)
	rg.POST("/evidence/:id/fail", h.failEvidence)
	rg.POST("/documents/:id/process", h.processDocument)
	rg.GET("/documents/:id/artifact", h.documentArtifact)
	rg.POST("/fields/:id/override", h.overrideField)
	rg.POST("/notifications/:id/read", h.markNotificationRead)
}

func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(ActorHeader); actor != "" {
			c.Request = c.Request.WithContext(core.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

func (h *Handler) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func respond(c *gin.Context, data any, res domain.Result, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Data: data, Violations: res.Violations})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func writeError(c *gin.Context, err error) {
	var violation domain.RuleViolationError
	switch {
	case errors.As(err, &violation):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Violations: violation.Result.Violations})
	case core.IsNotFound(err), errors.Is(err, blobcore.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrNoBlobStore):
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
