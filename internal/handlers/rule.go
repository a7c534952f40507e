// internal/handlers/rule.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vetlink/vetlink-backend/internal/i18n"
	"github.com/vetlink/vetlink-backend/internal/services"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

type RuleHandler struct {
	ruleService *services.RuleService
}

func NewRuleHandler(ruleService *services.RuleService) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
	}
}

// POST /rules
func (h *RuleHandler) CreateRule(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	var req services.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), clinicID, &req)
	if err != nil {
		var invalidConfig *services.InvalidRuleConfigurationError
		if errors.As(err, &invalidConfig) {
			utils.ErrorResponse(c, http.StatusUnprocessableEntity, "INVALID_RULE_CONFIGURATION",
				i18n.T(lang, i18n.KeyRuleInvalidConfig), gin.H{
					"field":  invalidConfig.Field,
					"reason": invalidConfig.Reason,
				})
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, rule)
}

// PUT /rules/:id
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	var req services.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), clinicID, ruleID, &req)
	if err != nil {
		var invalidConfig *services.InvalidRuleConfigurationError
		if errors.As(err, &invalidConfig) {
			utils.ErrorResponse(c, http.StatusUnprocessableEntity, "INVALID_RULE_CONFIGURATION",
				i18n.T(lang, i18n.KeyRuleInvalidConfig), gin.H{
					"field":  invalidConfig.Field,
					"reason": invalidConfig.Reason,
				})
			return
		}
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyRuleNotFound))
		return
	}

	utils.SuccessResponse(c, rule)
}

// DELETE /rules/:id
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	ruleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid rule ID", nil)
		return
	}

	if err := h.ruleService.DeleteRule(c.Request.Context(), clinicID, ruleID); err != nil {
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyRuleNotFound))
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyRuleDeleted),
	})
}

// GET /rules
func (h *RuleHandler) ListRules(c *gin.Context) {
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	rules, total, err := h.ruleService.ListRules(clinicID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(rules, total, params))
}

// POST /contracts
func (h *RuleHandler) CreateContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	var req services.CreateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	contract, err := h.ruleService.CreateContract(c.Request.Context(), clinicID, &req)
	if err != nil {
		var invalidConfig *services.InvalidRuleConfigurationError
		if errors.As(err, &invalidConfig) {
			utils.ErrorResponse(c, http.StatusUnprocessableEntity, "INVALID_RULE_CONFIGURATION",
				i18n.T(lang, i18n.KeyRuleInvalidConfig), gin.H{
					"field":  invalidConfig.Field,
					"reason": invalidConfig.Reason,
				})
			return
		}
		if errors.Is(err, services.ErrDuplicateContract) {
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyContractDuplicate))
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, contract)
}

// DELETE /contracts/:id
func (h *RuleHandler) DeactivateContract(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	contractID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid contract ID", nil)
		return
	}

	if err := h.ruleService.DeactivateContract(c.Request.Context(), clinicID, contractID); err != nil {
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeyContractNotFound))
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyContractDeactivated),
	})
}

// GET /contracts
func (h *RuleHandler) ListContracts(c *gin.Context) {
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	contracts, total, err := h.ruleService.ListContracts(clinicID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(contracts, total, params))
}

func clinicIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	clinicIDStr, exists := utils.GetClinicIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}
	clinicID, err := uuid.Parse(clinicIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid clinic ID", nil)
		return uuid.Nil, false
	}
	return clinicID, true
}
