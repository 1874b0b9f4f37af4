package handler

import (
	"net/http"
	"strconv"

	"github.com/chicomed/kalia-shop-sub000/internal/apierror"
	"github.com/chicomed/kalia-shop-sub000/internal/dto"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"
	"github.com/chicomed/kalia-shop-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrderHandler struct{ svc service.OrderService }

func NewOrderHandler(svc service.OrderService) *OrderHandler { return &OrderHandler{svc: svc} }

// Checkout godoc
// @Summary Places a storefront order (public, no auth)
// @Tags orders
// @Accept json
// @Produce json
// @Param body body dto.CheckoutRequest true "Order data"
// @Success 201 {object} dto.CheckoutResponse
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/checkout [post]
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Checkout(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	// 201 even with pending steps: the order itself is always recorded.
	c.JSON(http.StatusCreated, resp)
}

// SetStatus godoc
// @Summary Advances an order through its lifecycle
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Order ID"
// @Param body body dto.SetStatusRequest true "Target status"
// @Success 200 {object} dto.CheckoutResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/orders/{id}/status [put]
func (h *OrderHandler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid order id"))
		return
	}
	var req dto.SetStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SetStatus(c.Request.Context(), id, req.Status, actorID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one order with its items.
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid order id"))
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// List returns orders filtered by status and/or customer phone, paginated.
func (h *OrderHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter := repository.OrderFilter{
		Status: c.Query("status"),
		Phone:  c.Query("phone"),
		Page:   page,
		Limit:  limit,
	}
	resp, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Revenue godoc
// @Summary Order revenue for today/week/month, cancelled orders excluded
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.RevenueReportResponse
// @Router /v1/orders/revenue [get]
func (h *OrderHandler) Revenue(c *gin.Context) {
	period := c.DefaultQuery("period", "today")
	resp, err := h.svc.RevenueReport(c.Request.Context(), period)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
