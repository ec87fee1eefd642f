package handler

import (
	"net/http"
	"time"

	"github.com/backmoon7/webhookengine/internal/pipeline"
	"github.com/backmoon7/webhookengine/internal/reconcile"
	"github.com/backmoon7/webhookengine/internal/refund"

	"github.com/gin-gonic/gin"
)

// Handler holds the collaborators the three endpoints dispatch to.
type Handler struct {
	pipeline   *pipeline.Pipeline
	reconciler *reconcile.Reconciler
	refunds    *refund.Service
	secret     string
}

func NewHandler(p *pipeline.Pipeline, r *reconcile.Reconciler, rf *refund.Service, signingSecret string) *Handler {
	return &Handler{pipeline: p, reconciler: r, refunds: rf, secret: signingSecret}
}

// webhookResponse is the §6 response envelope for /webhooks/stripe.
type webhookResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// IngestWebhook handles POST /webhooks/stripe.
func (h *Handler) IngestWebhook(c *gin.Context) {
	sig := c.GetHeader("Stripe-Signature")
	if sig == "" {
		c.JSON(http.StatusBadRequest, webhookResponse{Status: "failed", Error: "missing Stripe-Signature header"})
		return
	}

	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, webhookResponse{Status: "failed", Error: "unable to read request body"})
		return
	}

	res := h.pipeline.Ingest(c.Request.Context(), rawBody, sig, h.secret)
	writeIngestResult(c, res)
}

func writeIngestResult(c *gin.Context, res pipeline.Result) {
	switch res.Status {
	case pipeline.StatusOK:
		c.JSON(http.StatusOK, webhookResponse{Status: "ok"})
	case pipeline.StatusDuplicate:
		c.JSON(http.StatusOK, webhookResponse{Status: "duplicate"})
	case pipeline.StatusSignatureRejected:
		c.JSON(http.StatusBadRequest, webhookResponse{Status: "failed", Error: res.ErrorMessage})
	case pipeline.StatusNonTerminalDup, pipeline.StatusAppliedButFailed:
		c.JSON(http.StatusConflict, webhookResponse{Status: "failed", Error: res.ErrorMessage})
	default:
		c.JSON(http.StatusConflict, webhookResponse{Status: "failed", Error: res.ErrorMessage})
	}
}

// ReconcileRequest is the /reconcile request body of spec.md §6.
type ReconcileRequest struct {
	Limit                int    `json:"limit"`
	CreatedAfterUnix     int64  `json:"created_after"`
	StartingAfterEventID string `json:"starting_after_event_id"`
}

// Reconcile handles POST /reconcile.
func (h *Handler) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	opts := reconcile.Options{
		Limit:                req.Limit,
		StartingAfterEventID: req.StartingAfterEventID,
	}
	if req.CreatedAfterUnix > 0 {
		opts.CreatedAfter = unixToTime(req.CreatedAfterUnix)
	}

	result := h.reconciler.Run(c.Request.Context(), opts)
	c.JSON(http.StatusOK, gin.H{
		"total":         result.Total,
		"processed":     result.Processed,
		"duplicates":    result.Duplicates,
		"failed":        result.Failed,
		"last_event_id": result.LastEventID,
		"has_more":      result.HasMore,
	})
}

// RefundRequest is the /refunds request body of spec.md §6.
type RefundRequest struct {
	UserID            int64  `json:"user_id" binding:"required"`
	BusinessRefundID  string `json:"business_refund_id"`
	BusinessPaymentID string `json:"business_payment_id" binding:"required"`
	IdempotencyKey    string `json:"idempotency_key"`
}

// CreateRefund handles POST /refunds.
func (h *Handler) CreateRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.refunds.Create(c.Request.Context(), refund.Request{
		UserID:            req.UserID,
		BusinessRefundID:  req.BusinessRefundID,
		BusinessPaymentID: req.BusinessPaymentID,
		IdempotencyKey:    req.IdempotencyKey,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund_id": res.RefundRecord.BusinessRefundID,
		"status":    res.RefundRecord.Status,
	})
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
