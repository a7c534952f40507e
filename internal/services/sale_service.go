// internal/services/sale_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vetlink/vetlink-backend/internal/database"
	"github.com/vetlink/vetlink-backend/internal/models"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

// SaleService registers sale lines and drives finalization: build the split
// plan, record the ledger and stamp the finalization marker in one
// transaction.
type SaleService struct {
	db            *gorm.DB
	splitService  *SplitService
	ledgerService *LedgerService
}

func NewSaleService(db *gorm.DB, splitService *SplitService, ledgerService *LedgerService) *SaleService {
	return &SaleService{
		db:            db,
		splitService:  splitService,
		ledgerService: ledgerService,
	}
}

type CreateSaleLineRequest struct {
	ServiceOrProductID uuid.UUID       `json:"service_or_product_id" validate:"required"`
	Description        string          `json:"description,omitempty"`
	CategoryID         *uuid.UUID      `json:"category_id,omitempty"`
	PerformedByID      *uuid.UUID      `json:"performed_by_id,omitempty"`
	GrossAmount        decimal.Decimal `json:"gross_amount"`
}

type CreateSaleRequest struct {
	TutorID   *uuid.UUID              `json:"tutor_id,omitempty"`
	PatientID *uuid.UUID              `json:"patient_id,omitempty"`
	Notes     string                  `json:"notes,omitempty"`
	Lines     []CreateSaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// FinalizationResult is what sale finalization hands back: the recorded plan
// and the ledger entries it produced.
type FinalizationResult struct {
	Sale    *models.Sale                   `json:"sale"`
	Plan    *SplitPlan                     `json:"plan"`
	Entries []models.CommissionLedgerEntry `json:"entries"`
}

func (s *SaleService) CreateSale(clinicID uuid.UUID, req *CreateSaleRequest) (*models.Sale, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	for _, line := range req.Lines {
		if line.GrossAmount.Sign() < 0 {
			return nil, errors.New("sale line gross amount cannot be negative")
		}
	}

	sale := &models.Sale{
		ClinicID:  clinicID,
		TutorID:   req.TutorID,
		PatientID: req.PatientID,
		Status:    models.SaleStatusOpen,
		Notes:     req.Notes,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Create(sale).Error; err != nil {
			return fmt.Errorf("failed to create sale: %w", err)
		}
		for _, lineReq := range req.Lines {
			line := models.SaleLine{
				SaleID:             sale.ID,
				ServiceOrProductID: lineReq.ServiceOrProductID,
				Description:        lineReq.Description,
				CategoryID:         lineReq.CategoryID,
				PerformedByID:      lineReq.PerformedByID,
				GrossAmount:        lineReq.GrossAmount,
			}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("failed to create sale line: %w", err)
			}
			sale.Lines = append(sale.Lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sale, nil
}

func (s *SaleService) GetSale(clinicID, saleID uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := s.db.Preload("Lines").
		Where("id = ? AND clinic_id = ?", saleID, clinicID).
		First(&sale).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &sale, nil
}

// PreviewSplit builds the settlement plan for an open sale without
// persisting anything. Used by the admin UI before finalization.
func (s *SaleService) PreviewSplit(ctx context.Context, clinicID, saleID uuid.UUID) (*SplitPlan, error) {
	sale, err := s.GetSale(clinicID, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status == models.SaleStatusCanceled {
		return nil, ErrSaleCanceled
	}
	return s.splitService.BuildPlanForSale(ctx, sale.ID)
}

// FinalizeSale marks the sale complete and settles it: the split plan is
// built, the ledger recorded and the finalization marker stamped inside one
// transaction. The plan is built only after the sale row lock is held, so a
// line added concurrently is either in the recorded plan or rejected by the
// lock. Nothing persists if any step fails. Duplicate submits lose on the
// row lock and see the sale already finalized.
func (s *SaleService) FinalizeSale(ctx context.Context, clinicID, saleID uuid.UUID) (*FinalizationResult, error) {
	result := &FinalizationResult{}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var sale models.Sale
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Lines").
			Where("id = ? AND clinic_id = ?", saleID, clinicID).
			First(&sale).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSaleNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		if sale.Status == models.SaleStatusFinalized {
			return ErrSaleAlreadyFinalized
		}
		if sale.Status == models.SaleStatusCanceled {
			return ErrSaleCanceled
		}

		plan, err := s.splitService.BuildPlanForSaleTx(ctx, tx, saleID)
		if err != nil {
			return err
		}
		result.Plan = plan

		entries, err := s.ledgerService.Record(tx, &sale, plan)
		if err != nil {
			return err
		}

		now := time.Now()
		sale.Status = models.SaleStatusFinalized
		sale.FinalizedAt = &now
		if err := tx.Save(&sale).Error; err != nil {
			return fmt.Errorf("failed to stamp finalization: %w", err)
		}

		result.Sale = &sale
		result.Entries = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
