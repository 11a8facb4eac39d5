package handler

import (
	"io"
	"net/http"
	"time"

	"p2p/internal/service"
	"p2p/pkg/response"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PurchaseOrderHandler struct {
	poService service.PurchaseOrderService
}

func NewPurchaseOrderHandler(poService service.PurchaseOrderService) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{poService: poService}
}

func (h *PurchaseOrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/api/purchase-orders")
	{
		orders.GET("", h.ListPurchaseOrders)
		orders.GET("/export", h.ExportPurchaseOrders)
		orders.GET("/:id", h.GetPurchaseOrder)
		orders.GET("/:id/document", h.DownloadDocument)
		orders.PATCH("/:id/status", h.UpdateStatus)
	}
}

// ListPurchaseOrders lists the purchase orders visible to the caller
// @Summary      List purchase orders
// @Description  Finance sees every order, staff the orders of their requests, approvers the orders of requests they approved.
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      json
// @Param        status  query     string  false  "GENERATED, SENT, COMPLETED or CANCELLED"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 10)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/purchase-orders [get]
func (h *PurchaseOrderHandler) ListPurchaseOrders(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	p := paging(c)
	items, total, err := h.poService.List(c.Request.Context(), caller, service.POFilter{
		Status: c.Query("status"),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, items, total, p.Page, p.Limit))
}

// GetPurchaseOrder returns one purchase order
// @Summary      Get purchase order
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Purchase order ID"
// @Success      200  {object}  response.Response{data=service.PurchaseOrderResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/purchase-orders/{id} [get]
func (h *PurchaseOrderHandler) GetPurchaseOrder(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.poService.Get(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// UpdateStatus sets the purchase order status
// @Summary      Update purchase order status
// @Tags         purchase-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Purchase order ID"
// @Param        payload  body      service.UpdatePOStatusDTO  true  "New status"
// @Success      200      {object}  response.Response{data=service.PurchaseOrderResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/purchase-orders/{id}/status [patch]
func (h *PurchaseOrderHandler) UpdateStatus(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdatePOStatusDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	res, err := h.poService.UpdateStatus(c.Request.Context(), id, caller, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ExportPurchaseOrders downloads purchase orders as a spreadsheet
// @Summary      Export purchase orders
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        status  query  string  false  "Only orders in this status"
// @Success      200
// @Failure      403  {object}  response.Response
// @Router       /api/purchase-orders/export [get]
func (h *PurchaseOrderHandler) ExportPurchaseOrders(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	data, err := h.poService.Export(c.Request.Context(), caller, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	filename := "purchase_orders_" + time.Now().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// DownloadDocument streams the generated purchase order PDF
// @Summary      Download purchase order document
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id   path  string  true  "Purchase order ID"
// @Success      200
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/purchase-orders/{id}/document [get]
func (h *PurchaseOrderHandler) DownloadDocument(c *gin.Context) {
	caller, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	rc, filename, err := h.poService.OpenDocument(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		_ = c.Error(err)
	}
}
