package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"whalewatcher/internal/adapters/export"
	"whalewatcher/internal/core"
	"whalewatcher/pkg/domain"
)

type selectCaseRequest struct {
	CaseID *string `json:"case_id"`
}

type demographicsRequest struct {
	Missing bool `json:"missing"`
}

type evidenceTypeRequest struct {
	Type domain.EvidenceType `json:"type" binding:"required"`
}

type evidenceFailureRequest struct {
	Failed bool `json:"failed"`
}

type gapStatusRequest struct {
	Status domain.GapStatus `json:"status" binding:"required"`
}

type failOrderRequest struct {
	Reason  string `json:"reason" binding:"required"`
	OpenGap bool   `json:"open_gap"`
}

type processDocumentRequest struct {
	Fields []domain.ExtractedField `json:"fields"`
}

type overrideFieldRequest struct {
	Value  string `json:"value"`
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Session())
}

func (h *Handler) selectCase(c *gin.Context) {
	var req selectCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid selection payload")
		return
	}
	if err := h.svc.SelectCase(c.Request.Context(), req.CaseID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Session())
}

func (h *Handler) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshot())
}

func (h *Handler) resetDemo(c *gin.Context) {
	if err := h.svc.ResetDemo(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Session())
}

func (h *Handler) listCases(c *gin.Context) {
	cases, err := h.svc.ListCases(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

func (h *Handler) exportCases(c *gin.Context) {
	ctx := c.Request.Context()
	cases, err := h.svc.ListCases(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	gaps, err := h.svc.ListGaps(ctx, "")
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := export.WorkQueue(cases, gaps)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="work-queue.xlsx"`)
	c.Data(http.StatusOK, export.ContentType, data)
}

func (h *Handler) getCase(c *gin.Context) {
	cs, err := h.svc.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func writeList[T any](c *gin.Context, key string, items []T, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{key: items})
}

func (h *Handler) listGaps(c *gin.Context) {
	items, err := h.svc.ListGaps(c.Request.Context(), c.Param("id"))
	writeList(c, "gaps", items, err)
}

func (h *Handler) listEvidence(c *gin.Context) {
	items, err := h.svc.ListEvidenceOrders(c.Request.Context(), c.Param("id"))
	writeList(c, "evidence_orders", items, err)
}

func (h *Handler) listDocuments(c *gin.Context) {
	items, err := h.svc.ListDocuments(c.Request.Context(), c.Param("id"))
	writeList(c, "documents", items, err)
}

func (h *Handler) listFields(c *gin.Context) {
	items, err := h.svc.ListApplicationFields(c.Request.Context(), c.Param("id"))
	writeList(c, "fields", items, err)
}

func (h *Handler) listNotifications(c *gin.Context) {
	items, err := h.svc.ListNotifications(c.Request.Context(), c.Param("id"))
	writeList(c, "notifications", items, err)
}

func (h *Handler) listAudit(c *gin.Context) {
	items, err := h.svc.ListAuditEvents(c.Request.Context(), c.Param("id"))
	writeList(c, "audit_events", items, err)
}

func (h *Handler) listAllAudit(c *gin.Context) {
	events, err := h.svc.ListAuditEvents(c.Request.Context(), "")
	if err != nil {
		writeError(c, err)
		return
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	writeList(c, "audit_events", events, nil)
}

func (h *Handler) advanceStage(c *gin.Context) {
	cs, res, err := h.svc.AdvanceStage(c.Request.Context(), c.Param("id"))
	respond(c, cs, res, err)
}

func (h *Handler) toggleDemographics(c *gin.Context) {
	var req demographicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid demographics payload")
		return
	}
	cs, res, err := h.svc.ToggleMissingDemographics(c.Request.Context(), c.Param("id"), req.Missing)
	respond(c, cs, res, err)
}

func (h *Handler) verifyDemographics(c *gin.Context) {
	cs, res, err := h.svc.VerifyDemographics(c.Request.Context(), c.Param("id"))
	respond(c, cs, res, err)
}

func (h *Handler) orderEvidence(c *gin.Context) {
	var req evidenceTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "evidence type is required")
		return
	}
	o, res, err := h.svc.OrderEvidence(c.Request.Context(), c.Param("id"), req.Type)
	respond(c, o, res, err)
}

func (h *Handler) receiveEvidence(c *gin.Context) {
	var req evidenceTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "evidence type is required")
		return
	}
	orders, res, err := h.svc.ReceiveEvidence(c.Request.Context(), c.Param("id"), req.Type)
	if orders == nil {
		orders = []core.EvidenceOrder{}
	}
	respond(c, orders, res, err)
}

func (h *Handler) toggleEvidenceFailure(c *gin.Context) {
	var req evidenceFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid evidence failure payload")
		return
	}
	o, res, err := h.svc.ToggleEvidenceFailure(c.Request.Context(), c.Param("id"), req.Failed)
	respond(c, o, res, err)
}

func (h *Handler) addGap(c *gin.Context) {
	var gap core.Gap
	if err := c.ShouldBindJSON(&gap); err != nil {
		badRequest(c, "invalid gap payload")
		return
	}
	gap.CaseID = c.Param("id")
	created, res, err := h.svc.AddGap(c.Request.Context(), gap)
	respond(c, created, res, err)
}

func (h *Handler) addNotification(c *gin.Context) {
	var n core.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		badRequest(c, "invalid notification payload")
		return
	}
	n.CaseID = c.Param("id")
	created, res, err := h.svc.AddNotification(c.Request.Context(), n)
	respond(c, created, res, err)
}

func (h *Handler) ingestDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	body, err := file.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer body.Close()
	name := c.PostForm("name")
	if name == "" {
		name = file.Filename
	}
	doc, res, err := h.svc.IngestDocument(c.Request.Context(), core.DocumentUpload{
		CaseID:      c.Param("id"),
		Name:        name,
		Type:        c.PostForm("type"),
		Source:      c.PostForm("source"),
		ContentType: file.Header.Get("Content-Type"),
		Body:        body,
	})
	respond(c, doc, res, err)
}

func (h *Handler) completeDemo(c *gin.Context) {
	cs, res, err := h.svc.CompleteDemoSuccess(c.Request.Context(), c.Param("id"))
	respond(c, cs, res, err)
}

func (h *Handler) updateGapStatus(c *gin.Context) {
	var req gapStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "gap status is required")
		return
	}
	g, res, err := h.svc.UpdateGapStatus(c.Request.Context(), c.Param("id"), req.Status)
	respond(c, g, res, err)
}

func (h *Handler) closeGap(c *gin.Context) {
	g, res, err := h.svc.CloseGap(c.Request.Context(), c.Param("id"))
	respond(c, g, res, err)
}

func (h *Handler) retryEvidence(c *gin.Context) {
	o, res, err := h.svc.RetryEvidenceOrder(c.Request.Context(), c.Param("id"))
	respond(c, o, res, err)
}

func (h *Handler) failEvidence(c *gin.Context) {
	var req failOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "failure reason is required")
		return
	}
	o, res, err := h.svc.FailEvidenceOrder(c.Request.Context(), c.Param("id"), req.Reason, req.OpenGap)
	respond(c, o, res, err)
}

func (h *Handler) processDocument(c *gin.Context) {
	var req processDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid extraction payload")
		return
	}
	doc, res, err := h.svc.ProcessDocument(c.Request.Context(), c.Param("id"), req.Fields)
	respond(c, doc, res, err)
}

func (h *Handler) documentArtifact(c *gin.Context) {
	info, rc, err := h.svc.OpenDocumentArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, nil)
}

func (h *Handler) overrideField(c *gin.Context) {
	var req overrideFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "override reason is required")
		return
	}
	f, res, err := h.svc.OverrideField(c.Request.Context(), c.Param("id"), req.Value, req.Reason)
	respond(c, f, res, err)
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	n, res, err := h.svc.MarkNotificationRead(c.Request.Context(), c.Param("id"))
	respond(c, n, res, err)
}
