package http

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kelvinjia/ai-procurement/internal/application/engine"
	"github.com/kelvinjia/ai-procurement/internal/domain/entity"
)

// maxUploadSize caps uploaded document size at 20 MiB.
const maxUploadSize = 20 << 20

var errTooLarge = errors.New("uploaded document exceeds size limit")

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine *engine.Engine
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(eng *engine.Engine, logger Logger) *Handlers {
	return &Handlers{engine: eng, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// SubmitRequest carries the actor of a submit call
type SubmitRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
}

// DecisionRequest carries one approval decision
type DecisionRequest struct {
	Level      string `json:"level" binding:"required"`
	ApproverID string `json:"approver_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Comment    string `json:"comment"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateRequest handles POST /api/requests. The body is a multipart
// form so a proforma document can ride along with the draft fields.
func (h *Handlers) CreateRequest(c *gin.Context) {
	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "amount must be a number")
		return
	}

	in := engine.CreateRequestInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		RequesterID: c.PostForm("requester_id"),
		Amount:      amount,
		Currency:    c.PostForm("currency"),
		VendorID:    c.PostForm("vendor_id"),
	}

	if file, err := c.FormFile("proforma"); err == nil {
		content, contentType, err := readUpload(file)
		if err != nil {
			h.fail(c, http.StatusBadRequest, err.Error())
			return
		}
		in.Proforma = content
		in.ProformaContentType = contentType
	}

	req, err := h.engine.CreateRequest(c.Request.Context(), in)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.engine.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// AttachProforma handles POST /api/requests/:id/proforma
func (h *Handlers) AttachProforma(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("proforma")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "proforma file is required")
		return
	}
	content, contentType, err := readUpload(file)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	att, err := h.engine.AttachProforma(c.Request.Context(), id, content, contentType)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: att})
}

// Submit handles POST /api/requests/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "actor_id is required")
		return
	}

	res, err := h.engine.Submit(c.Request.Context(), id, req.ActorID)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: res})
}

// Decide handles POST /api/requests/:id/decisions
func (h *Handlers) Decide(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "level, approver_id and decision are required")
		return
	}

	res, err := h.engine.Decide(c.Request.Context(), id,
		entity.ApprovalLevel(req.Level), req.ApproverID, req.Decision, req.Comment)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: res})
}

// UploadReceipt handles POST /api/requests/:id/receipt
func (h *Handlers) UploadReceipt(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	actorID := c.PostForm("actor_id")
	if actorID == "" {
		h.fail(c, http.StatusBadRequest, "actor_id is required")
		return
	}
	file, err := c.FormFile("receipt")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "receipt file is required")
		return
	}
	content, contentType, err := readUpload(file)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.UploadReceipt(c.Request.Context(), id, actorID, content, contentType)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: res})
}

// ApprovalHistory handles GET /api/requests/:id/approvals
func (h *Handlers) ApprovalHistory(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	steps, err := h.engine.ApprovalHistory(c.Request.Context(), id)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// AuditTrail handles GET /api/requests/:id/audit
func (h *Handlers) AuditTrail(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	entries, err := h.engine.AuditTrail(c.Request.Context(), id)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ProformaMetadata handles GET /api/requests/:id/metadata
func (h *Handlers) ProformaMetadata(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	md, err := h.engine.LatestProformaMetadata(c.Request.Context(), id)
	if err != nil {
		h.engineError(c, err)
		return
	}
	if md == nil {
		h.fail(c, http.StatusNotFound, "no extraction result available")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: md})
}

// GetPurchaseOrder handles GET /api/requests/:id/po
func (h *Handlers) GetPurchaseOrder(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	po, err := h.engine.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		h.engineError(c, err)
		return
	}
	if po == nil {
		h.fail(c, http.StatusNotFound, "purchase order not generated")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: po})
}

// ValidationResult handles GET /api/requests/:id/validation
func (h *Handlers) ValidationResult(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	res, err := h.engine.LatestValidationResult(c.Request.Context(), id)
	if err != nil {
		h.engineError(c, err)
		return
	}
	if res == nil {
		h.fail(c, http.StatusNotFound, "no validation result available")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: res})
}

// PendingQueue handles GET /api/queues/:level
func (h *Handlers) PendingQueue(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	reqs, err := h.engine.ListPendingForLevel(c.Request.Context(),
		entity.ApprovalLevel(c.Param("level")), limit)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: reqs})
}

// requestID parses the :id path parameter.
func (h *Handlers) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, http.StatusBadRequest, "invalid request ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// engineError maps the engine error taxonomy onto HTTP statuses.
func (h *Handlers) engineError(c *gin.Context, err error) {
	h.logger.Error("Engine operation failed", "path", c.Request.URL.Path, "error", err)

	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindValidation:
		status = http.StatusUnprocessableEntity
	case engine.KindConflict:
		status = http.StatusConflict
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindGeneration:
		status = http.StatusBadGateway
	case engine.KindInfra:
		status = http.StatusServiceUnavailable
	}

	h.fail(c, status, err.Error())
}

// readUpload pulls the bytes and declared content type off a multipart file.
func readUpload(file *multipart.FileHeader) ([]byte, string, error) {
	if file.Size > maxUploadSize {
		return nil, "", errTooLarge
	}
	f, err := file.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(content) > maxUploadSize {
		return nil, "", errTooLarge
	}
	return content, file.Header.Get("Content-Type"), nil
}
