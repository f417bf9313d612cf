package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	portssvc "github.com/sandpesa/coreledger/internal/core/ports/services"
	"github.com/sandpesa/coreledger/internal/dto"
	"github.com/sandpesa/coreledger/internal/middleware"
)

type policyHandler struct {
	policyService portssvc.PolicySvcFacade
}

func newPolicyHandler(ps portssvc.PolicySvcFacade) *policyHandler {
	return &policyHandler{policyService: ps}
}

// registerPolicyRoutes registers policy and delegation administration routes.
func registerPolicyRoutes(rg *gin.RouterGroup, policyService portssvc.PolicySvcFacade) {
	h := newPolicyHandler(policyService)

	policies := rg.Group("/policies")
	{
		policies.POST("", h.createPolicy)
		policies.GET("", h.listPolicies)
		policies.POST("/:policyID/activate", h.activatePolicy)
	}

	delegations := rg.Group("/delegations")
	{
		delegations.POST("", h.createDelegation)
		delegations.DELETE("/:delegationID", h.revokeDelegation)
	}
}

func (h *policyHandler) createPolicy(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreatePolicy", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actorID, _, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	policy, err := h.policyService.CreatePolicy(c.Request.Context(), req, actorID)
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, policy)
}

func (h *policyHandler) listPolicies(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	policies, err := h.policyService.ListPolicies(c.Request.Context())
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *policyHandler) activatePolicy(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	policyID := c.Param("policyID")

	actorID, _, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.policyService.ActivatePolicy(c.Request.Context(), policyID, actorID); err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Policy activated"})
}

func (h *policyHandler) createDelegation(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())

	var req dto.CreateDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateDelegation", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	actorID, _, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	delegation, err := h.policyService.CreateDelegation(c.Request.Context(), req, actorID)
	if err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, delegation)
}

func (h *policyHandler) revokeDelegation(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	delegationID := c.Param("delegationID")

	actorID, _, ok := middleware.GetActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.policyService.RevokeDelegation(c.Request.Context(), delegationID, actorID); err != nil {
		respondServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Delegation revoked"})
}
