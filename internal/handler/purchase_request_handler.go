package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"p2p/internal/model"
	"p2p/internal/service"
	"p2p/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PurchaseRequestHandler struct {
	requestService  service.PurchaseRequestService
	workflowService service.WorkflowService
	maxUploadSize   int64
}

func NewPurchaseRequestHandler(requestService service.PurchaseRequestService, workflowService service.WorkflowService, maxUploadSize int64) *PurchaseRequestHandler {
	return &PurchaseRequestHandler{
		requestService:  requestService,
		workflowService: workflowService,
		maxUploadSize:   maxUploadSize,
	}
}

func (h *PurchaseRequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	{
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
		requests.GET("/:id", h.GetRequest)
		requests.PUT("/:id", h.UpdateRequest)
		requests.DELETE("/:id", h.DeleteRequest)
		requests.POST("/:id/approve", h.ApproveRequest)
		requests.POST("/:id/reject", h.RejectRequest)
		requests.POST("/:id/proforma", h.UploadProforma)
		requests.POST("/:id/receipt", h.UploadReceipt)
	}
}

// CreateRequest submits a new purchase request
// @Summary      Create purchase request
// @Description  Staff submit a request with its items. The amount must equal the sum of the item totals.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePurchaseRequestDTO  true  "Purchase request"
// @Success      201      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/requests [post]
func (h *PurchaseRequestHandler) CreateRequest(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	var req service.CreatePurchaseRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.requestService.Create(c.Request.Context(), caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ListRequests lists the purchase requests visible to the caller
// @Summary      List purchase requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "PENDING, APPROVED_LEVEL_1, APPROVED or REJECTED"
// @Param        search  query     string  false  "Search title and description"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 10)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Failure      400     {object}  response.Response
// @Router       /api/requests [get]
func (h *PurchaseRequestHandler) ListRequests(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	p := paging(c)
	items, total, err := h.requestService.List(c.Request.Context(), caller, service.RequestFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// GetRequest returns one purchase request with items, approvals and its purchase order
// @Summary      Get purchase request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *PurchaseRequestHandler) GetRequest(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.requestService.Get(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// UpdateRequest edits a pending or rejected request. Editing a rejected request resubmits it.
// @Summary      Update purchase request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                            true  "Request ID"
// @Param        payload  body      service.UpdatePurchaseRequestDTO  true  "Changed fields"
// @Success      200      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/requests/{id} [put]
func (h *PurchaseRequestHandler) UpdateRequest(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdatePurchaseRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	res, err := h.requestService.Update(c.Request.Context(), id, caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DeleteRequest removes a pending or rejected request
// @Summary      Delete purchase request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *PurchaseRequestHandler) DeleteRequest(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.requestService.Delete(c.Request.Context(), id, caller); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Purchase request deleted successfully"))
}

// ApproveRequest records the caller's approval at their level
// @Summary      Approve purchase request
// @Description  Level 1 approves PENDING requests, level 2 approves APPROVED_LEVEL_1 requests. The final approval generates the purchase order.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Request ID"
// @Param        payload  body      service.DecisionDTO  false  "Comments"
// @Success      200      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/requests/{id}/approve [post]
func (h *PurchaseRequestHandler) ApproveRequest(c *gin.Context) {
	h.decide(c, h.workflowService.Approve)
}

// RejectRequest records the caller's rejection at their level
// @Summary      Reject purchase request
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Request ID"
// @Param        payload  body      service.DecisionDTO  false  "Comments"
// @Success      200      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/reject [post]
func (h *PurchaseRequestHandler) RejectRequest(c *gin.Context) {
	h.decide(c, h.workflowService.Reject)
}

type decisionFunc func(ctx context.Context, requestID uuid.UUID, actor model.Actor, comments string) (*service.PurchaseRequestResponse, error)

func (h *PurchaseRequestHandler) decide(c *gin.Context, fn decisionFunc) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.DecisionDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
	}

	res, err := fn(c.Request.Context(), id, caller, req.Comments)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// readUpload returns the bytes of the multipart "file" field, capped at maxUploadSize.
func (h *PurchaseRequestHandler) readUpload(c *gin.Context) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "A file is required in the 'file' field")
		return "", nil, false
	}
	if fh.Size > h.maxUploadSize {
		badRequest(c, fmt.Sprintf("File exceeds the %d byte limit", h.maxUploadSize))
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, fmt.Errorf("open upload: %w", err))
		return "", nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadSize+1))
	if err != nil {
		respondError(c, fmt.Errorf("read upload: %w", err))
		return "", nil, false
	}
	return fh.Filename, data, true
}

// UploadProforma attaches a vendor proforma and stores the fields extracted from it
// @Summary      Upload proforma
// @Description  Accepts PDF, JPEG, PNG or plain text up to 10 MB. Vendor details found in text documents are used for the purchase order.
// @Tags         requests
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "Request ID"
// @Param        file  formData  file    true  "Proforma document"
// @Success      200   {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Router       /api/requests/{id}/proforma [post]
func (h *PurchaseRequestHandler) UploadProforma(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	name, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	res, err := h.requestService.UploadProforma(c.Request.Context(), id, caller, name, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// UploadReceipt attaches a receipt and checks its total against the purchase order
// @Summary      Upload receipt
// @Tags         requests
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id    path      string  true  "Request ID"
// @Param        file  formData  file    true  "Receipt document"
// @Success      200   {object}  response.Response{data=service.ReceiptUploadResponse}
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Router       /api/requests/{id}/receipt [post]
func (h *PurchaseRequestHandler) UploadReceipt(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	name, data, ok := h.readUpload(c)
	if !ok {
		return
	}
	res, err := h.requestService.UploadReceipt(c.Request.Context(), id, caller, name, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
