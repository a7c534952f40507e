// internal/handlers/ledger.go
package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vetlink/vetlink-backend/internal/i18n"
	"github.com/vetlink/vetlink-backend/internal/models"
	"github.com/vetlink/vetlink-backend/internal/services"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

type LedgerHandler struct {
	ledgerService  *services.LedgerService
	gatewayService *services.GatewayService
}

func NewLedgerHandler(ledgerService *services.LedgerService, gatewayService *services.GatewayService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService:  ledgerService,
		gatewayService: gatewayService,
	}
}

// POST /ledger/close
func (h *LedgerHandler) ClosePeriod(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return
	}
	closedByID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return
	}

	var req services.ClosePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	batch, err := h.ledgerService.ClosePeriod(clinicID, closedByID, &req)
	if err != nil {
		if errors.Is(err, services.ErrEmptyClosingPeriod) {
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyClosingEmpty))
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyClosingCompleted),
		"batch":   batch,
	})
}

// GET /ledger/summary
func (h *LedgerHandler) GetSummary(c *gin.Context) {
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	professionalID, err := uuid.Parse(c.Query("professional_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid professional ID", nil)
		return
	}

	from, to, err := parsePeriod(c)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	summary, err := h.ledgerService.Summary(clinicID, professionalID, from, to)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, summary)
}

// GET /ledger/entries
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	var professionalID *uuid.UUID
	if idStr := c.Query("professional_id"); idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid professional ID", nil)
			return
		}
		professionalID = &id
	}

	var status *models.LedgerStatus
	if statusStr := c.Query("status"); statusStr != "" {
		s := models.LedgerStatus(statusStr)
		if s != models.LedgerStatusPending && s != models.LedgerStatusPaid {
			utils.BadRequestResponse(c, "Invalid ledger status", nil)
			return
		}
		status = &s
	}

	params := utils.GetPaginationParams(c)
	entries, total, err := h.ledgerService.ListEntries(clinicID, professionalID, status, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(entries, total, params))
}

// GET /ledger/batches
func (h *LedgerHandler) ListBatches(c *gin.Context) {
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	batches, total, err := h.ledgerService.ListBatches(clinicID, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(batches, total, params))
}

// POST /ledger/disbursements/:id/retry
func (h *LedgerHandler) RetryDisbursement(c *gin.Context) {
	clinicID, ok := clinicIDFromContext(c)
	if !ok {
		return
	}

	disbursementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid disbursement ID", nil)
		return
	}

	if err := h.gatewayService.RetryDisbursement(clinicID, disbursementID); err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "disbursement resubmitted",
	})
}

func parsePeriod(c *gin.Context) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, c.DefaultQuery("from", "1970-01-01T00:00:00Z"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid from timestamp, expected RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.DefaultQuery("to", time.Now().UTC().Format(time.RFC3339)))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid to timestamp, expected RFC3339")
	}
	return from, to, nil
}
