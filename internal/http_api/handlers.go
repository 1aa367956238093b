package http_api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nem-pay/conciliare/internal/models"
	"github.com/nem-pay/conciliare/pkg/validation"
)

// CreateInvoiceRequest represents the JSON body for invoice creation
type CreateInvoiceRequest struct {
	Payer     string `json:"payer"`
	Recipient string `json:"recipient" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
}

// CreateInvoiceResponse represents the success response for invoice creation
type CreateInvoiceResponse struct {
	Success bool            `json:"success"`
	Invoice *models.Invoice `json:"invoice"`
}

// ReconcileResponse represents the outcome of a triggered sweep
type ReconcileResponse struct {
	Success bool                `json:"success"`
	Totals  models.SweepSummary `json:"totals"`
}

// createInvoice is a handler for the POST /invoices endpoint.
func (s *HTTPServer) createInvoice(c *gin.Context) {
	var req CreateInvoiceRequest

	// Parse and validate JSON request body
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	recipient, err := validation.ValidateAndNormalizeAddress(req.Recipient)
	if err != nil {
		s.logger.Debug("Invalid recipient address", "error", err, "address", req.Recipient)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid recipient address: " + err.Error(),
		})
		return
	}

	payer := ""
	status := models.StatusNotPaid
	if req.Payer != "" {
		payer, err = validation.ValidateAndNormalizeAddress(req.Payer)
		if err != nil {
			s.logger.Debug("Invalid payer address", "error", err, "address", req.Payer)
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid payer address: " + err.Error(),
			})
			return
		}
		// Known sender: the invoice starts identified.
		status = models.StatusIdentified
	}

	now := time.Now().Unix()
	invoice := &models.Invoice{
		Payer:     payer,
		Recipient: recipient,
		Amount:    req.Amount,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateInvoice(invoice); err != nil {
		s.logger.Error("Failed to create invoice", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to create invoice",
		})
		return
	}

	s.logger.Info("Invoice created", "number", invoice.Number, "recipient", recipient, "amount", req.Amount)
	c.JSON(http.StatusCreated, CreateInvoiceResponse{Success: true, Invoice: invoice})
}

// getInvoice is a handler for the GET /invoices/:number endpoint.
func (s *HTTPServer) getInvoice(c *gin.Context) {
	number := c.Param("number")
	if err := validation.ValidateInvoiceNumber(number); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice number: " + err.Error()})
		return
	}

	invoice, err := s.repo.GetInvoice(number)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get invoice"})
		return
	}
	if invoice == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// reconcileInvoice triggers a sweep for the invoice's recipient.
func (s *HTTPServer) reconcileInvoice(c *gin.Context) {
	number := c.Param("number")
	invoice, err := s.repo.GetInvoice(number)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get invoice"})
		return
	}
	if invoice == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}

	summary, err := s.reconciler.Sweep(c.Request.Context(), invoice.Recipient)
	if err != nil {
		s.logger.Error("Failed to reconcile", "recipient", invoice.Recipient, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Reconciliation failed, retry later",
		})
		return
	}

	c.JSON(http.StatusOK, ReconcileResponse{Success: true, Totals: summary})
}

// botStatusUpdate receives a raw payload from the payment bot. The optional
// channel query parameter names the originating client channel.
func (s *HTTPServer) botStatusUpdate(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty payload"})
		return
	}

	if err := s.forwarder.HandleStatusUpdate(c.Request.Context(), c.Query("channel"), payload); err != nil {
		s.logger.Debug("Invalid status update payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
