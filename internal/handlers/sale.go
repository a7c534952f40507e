// internal/handlers/sale.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vetlink/vetlink-backend/internal/i18n"
	"github.com/vetlink/vetlink-backend/internal/services"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

type SaleHandler struct {
	saleService    *services.SaleService
	gatewayService *services.GatewayService
}

func NewSaleHandler(saleService *services.SaleService, gatewayService *services.GatewayService) *SaleHandler {
	return &SaleHandler{
		saleService:    saleService,
		gatewayService: gatewayService,
	}
}

// POST /sales
func (h *SaleHandler) CreateSale(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	var req services.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	sale, err := h.saleService.CreateSale(clinicID, &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, sale)
}

// GET /sales/:id
func (h *SaleHandler) GetSale(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid sale ID", nil)
		return
	}

	sale, err := h.saleService.GetSale(clinicID, saleID)
	if err != nil {
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeySaleNotFound))
		return
	}

	utils.SuccessResponse(c, sale)
}

// GET /sales/:id/split-preview
func (h *SaleHandler) PreviewSplit(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid sale ID", nil)
		return
	}

	plan, err := h.saleService.PreviewSplit(c.Request.Context(), clinicID, saleID)
	if err != nil {
		h.respondSplitError(c, lang, err)
		return
	}

	utils.SuccessResponse(c, plan)
}

// POST /sales/:id/finalize
func (h *SaleHandler) FinalizeSale(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	saleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid sale ID", nil)
		return
	}

	result, err := h.saleService.FinalizeSale(c.Request.Context(), clinicID, saleID)
	if err != nil {
		h.respondSplitError(c, lang, err)
		return
	}

	// Provider payouts ride on the gateway asynchronously from the
	// clinic's point of view. A gateway hiccup never undoes the ledger.
	if err := h.gatewayService.SubmitProviderPayouts(result.Plan); err != nil {
		logrus.WithError(err).WithField("sale_id", saleID).
			Warn("provider payout submission failed, disbursements remain retryable")
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeySaleFinalized),
		"sale":    result.Sale,
		"plan":    result.Plan,
		"entries": result.Entries,
	})
}

func (h *SaleHandler) respondSplitError(c *gin.Context, lang string, err error) {
	var overalloc *services.SplitOverallocationError
	if errors.As(err, &overalloc) {
		utils.ErrorResponse(c, http.StatusUnprocessableEntity, "SPLIT_OVERALLOCATION",
			i18n.T(lang, i18n.KeySplitOverallocated), gin.H{
			"sale_id":     overalloc.SaleID,
			"line_id":     overalloc.LineID,
			"rule_id":     overalloc.RuleID,
			"total_gross": overalloc.TotalGross.StringFixed(2),
			"allocated":   overalloc.Allocated.StringFixed(2),
		})
		return
	}

	var inconsistent *services.LedgerConsistencyError
	if errors.As(err, &inconsistent) {
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyLedgerInconsistent))
		return
	}

	switch {
	case errors.Is(err, services.ErrSaleNotFound):
		utils.NotFoundResponse(c, i18n.T(lang, i18n.KeySaleNotFound))
	case errors.Is(err, services.ErrSaleAlreadyFinalized):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeySaleAlreadyFinalized))
	case errors.Is(err, services.ErrSaleCanceled):
		utils.ConflictResponse(c, err.Error())
	default:
		utils.BadRequestResponse(c, err.Error(), nil)
	}
}
