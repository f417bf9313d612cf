package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/sandpesa/coreledger/internal/middleware"
)

// ledgerHandler handles posting, reversal, balance and journal queries.
type ledgerHandler struct {
	postingService portssvc.PostingSvcFacade
}

func newLedgerHandler(ps portssvc.PostingSvcFacade) *ledgerHandler {
	return &ledgerHandler{postingService: ps}
}

// registerLedgerRoutes registers ledger posting and query routes.
func registerLedgerRoutes(rg *gin.RouterGroup, postingService portssvc.PostingSvcFacade) {
	h := newLedgerHandler(postingService)

	ledger := rg.Group("/ledger/:domainKey")
	{
		ledger.POST("/journals", h.postJournal)
		ledger.POST("/reversals", h.reverseJournal)
		ledger.GET("/journals", h.listJournals)
	}
	rg.GET("/journals/:journalID", h.getJournal)
}

func (h *ledgerHandler) postJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	domainKey := c.Param("domainKey")

	var cmd dto.PostCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		logger.Warn("Failed to bind JSON for PostJournal", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actorID, _, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	cmd.ActorID = actorID
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = middleware.CorrelationIDFromCtx(c.Request.Context())
	}

	result, err := h.postingService.Post(c.Request.Context(), domainKey, cmd)
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *ledgerHandler) reverseJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	domainKey := c.Param("domainKey")

	var cmd dto.ReverseCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		logger.Warn("Failed to bind JSON for ReverseJournal", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actorID, _, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	cmd.ActorID = actorID
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = middleware.CorrelationIDFromCtx(c.Request.Context())
	}

	result, err := h.postingService.Reverse(c.Request.Context(), domainKey, cmd)
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *ledgerHandler) listJournals(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	domainKey := c.Param("domainKey")

	var params dto.ListJournalsParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	response, err := h.postingService.ListJournals(c.Request.Context(), domainKey, params)
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *ledgerHandler) getJournal(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	journalID := c.Param("journalID")

	journal, err := h.postingService.GetJournal(c.Request.Context(), journalID)
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, journal)
}
