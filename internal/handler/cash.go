package handler

import (
	"net/http"

	"github.com/chicomed/kalia-shop-sub000/internal/apierror"
	"github.com/chicomed/kalia-shop-sub000/internal/dto"
	"github.com/chicomed/kalia-shop-sub000/internal/middleware"
	"github.com/chicomed/kalia-shop-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CashHandler struct {
	svc        service.CashService
	dispatcher service.JobDispatcher
}

func NewCashHandler(svc service.CashService, dispatcher service.JobDispatcher) *CashHandler {
	return &CashHandler{svc: svc, dispatcher: dispatcher}
}

// Today godoc
// @Summary Returns today's cash session, creating it on first touch
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CashSessionResponse
// @Router /v1/cash/today [get]
func (h *CashHandler) Today(c *gin.Context) {
	date := c.DefaultQuery("date", service.Today())
	resp, err := h.svc.GetOrCreate(c.Request.Context(), date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Open godoc
// @Summary Opens the cash session for a date with an opening balance
// @Tags cash
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.OpenSessionRequest true "Opening data"
// @Success 200 {object} dto.CashSessionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash/open [post]
func (h *CashHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	date := req.Date
	if date == "" {
		date = service.Today()
	}
	actor := actorID(c)

	resp, err := h.svc.Open(c.Request.Context(), date, req.OpeningBalance, actor)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PostEntry godoc
// @Summary Appends a manual sale, refund or expense to the open session
// @Tags cash
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.ManualEntryRequest true "Journal entry"
// @Success 201 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/cash/entries [post]
func (h *CashHandler) PostEntry(c *gin.Context) {
	var req dto.ManualEntryRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.PostManual(c.Request.Context(), req, actorID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Close godoc
// @Summary Closes the cash session for a date
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CashSessionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/cash/close [post]
func (h *CashHandler) Close(c *gin.Context) {
	date := c.DefaultQuery("date", service.Today())
	resp, err := h.svc.Close(c.Request.Context(), date, actorID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if h.dispatcher != nil {
		if err := h.dispatcher.EnqueueClosingReport(c.Request.Context(), date); err != nil {
			log.Error().Err(err).Str("date", date).Msg("failed to enqueue closing report")
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Archive freezes a closed session into the history archive.
func (h *CashHandler) Archive(c *gin.Context) {
	date := c.DefaultQuery("date", service.Today())
	if err := h.svc.Archive(c.Request.Context(), date); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reset godoc
// @Summary Archives the current session and starts the date over (admin only)
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.CashSessionResponse
// @Router /v1/cash/reset [post]
func (h *CashHandler) Reset(c *gin.Context) {
	date := c.DefaultQuery("date", service.Today())
	resp, err := h.svc.Reset(c.Request.Context(), date, actorID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Journal godoc
// @Summary Returns the full day's journal across reset generations
// @Tags cash
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.TransactionResponse
// @Router /v1/cash/journal [get]
func (h *CashHandler) Journal(c *gin.Context) {
	date := c.DefaultQuery("date", service.Today())
	resp, err := h.svc.Journal(c.Request.Context(), date)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History returns archived snapshots plus live sessions for a date range.
func (h *CashHandler) History(c *gin.Context) {
	var q dto.CashRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid query: "+err.Error()))
		return
	}
	if err := validate.Struct(&q); err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.New("start and end must be YYYY-MM-DD"))
		return
	}
	resp, err := h.svc.History(c.Request.Context(), q.Start, q.End)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Totals folds ledger totals for today/week/month.
func (h *CashHandler) Totals(c *gin.Context) {
	period := c.DefaultQuery("period", "today")
	resp, err := h.svc.PeriodTotals(c.Request.Context(), period)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// actorID extracts the authenticated user's ID from the JWT claims.
func actorID(c *gin.Context) uuid.UUID {
	claims := middleware.GetClaims(c)
	if claims == nil {
		return uuid.Nil
	}
	id, _ := uuid.Parse(claims.UserID)
	return id
}
