package handler

import (
	"net/http"
	"strconv"

	"github.com/chicomed/kalia-shop-sub000/internal/apierror"
	"github.com/chicomed/kalia-shop-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ClientHandler struct{ svc service.ClientService }

func NewClientHandler(svc service.ClientService) *ClientHandler { return &ClientHandler{svc: svc} }

// Get returns one client with their cumulative stats.
func (h *ClientHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid client id"))
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// List returns clients, optionally filtered by status (active/vip/inactive).
func (h *ClientHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	resp, err := h.svc.List(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Promote godoc
// @Summary Manually promotes a client to VIP (admin only)
// @Tags clients
// @Produce json
// @Security BearerAuth
// @Param id path string true "Client ID"
// @Success 200 {object} dto.ClientResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/clients/{id}/promote [post]
func (h *ClientHandler) Promote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid client id"))
		return
	}
	resp, err := h.svc.PromoteToVIP(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
