// internal/services/ledger_service.go
package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/database"
	"github.com/vetlink/vetlink-backend/internal/models"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

// LedgerService records computed split plans as durable commission entries
// and runs the per-professional closing that pays them out.
type LedgerService struct {
	db                  *gorm.DB
	config              *config.Config
	notificationService *NotificationService
	statementService    *StatementService
}

func NewLedgerService(db *gorm.DB, config *config.Config, notificationService *NotificationService, statementService *StatementService) *LedgerService {
	return &LedgerService{
		db:                  db,
		config:              config,
		notificationService: notificationService,
		statementService:    statementService,
	}
}

type CommissionSummary struct {
	ProfessionalID uuid.UUID       `json:"professional_id"`
	TotalGenerated decimal.Decimal `json:"total_generated"`
	TotalPending   decimal.Decimal `json:"total_pending"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
}

type ClosePeriodRequest struct {
	ProfessionalID uuid.UUID           `json:"professional_id" validate:"required"`
	PeriodEnd      time.Time           `json:"period_end" validate:"required"`
	PayoutMethod   models.PayoutMethod `json:"payout_method" validate:"required,oneof=pix bank_transfer"`
}

// BuildEntries derives the ledger rows and provider disbursements a plan
// produces: one ledger entry per non-zero professional recipient, one
// disbursement per provider payout.
func BuildEntries(sale *models.Sale, plan *SplitPlan) ([]models.CommissionLedgerEntry, []models.ProviderDisbursement) {
	var entries []models.CommissionLedgerEntry
	var disbursements []models.ProviderDisbursement

	for _, r := range plan.Recipients {
		if r.Amount.Sign() <= 0 {
			continue
		}
		switch r.RecipientKind {
		case models.RecipientKindProfessional:
			entries = append(entries, models.CommissionLedgerEntry{
				ClinicID:       sale.ClinicID,
				ProfessionalID: r.RecipientID,
				SaleLineID:     r.SaleLineID,
				RuleID:         r.ReasonRuleID,
				Amount:         r.Amount,
				Status:         models.LedgerStatusPending,
			})
		case models.RecipientKindProvider:
			disbursements = append(disbursements, models.ProviderDisbursement{
				ClinicID:   sale.ClinicID,
				ProviderID: r.RecipientID,
				SaleLineID: r.SaleLineID,
				ContractID: r.ReasonRuleID,
				Amount:     r.Amount,
				Currency:   r.Currency,
				Status:     models.DisbursementStatusPending,
			})
		}
	}

	return entries, disbursements
}

// Record persists a plan's ledger entries and provider disbursements inside
// the caller's transaction. Idempotent per sale: if the sale's lines are
// already recorded this is a no-op returning the existing entries. The plan
// is re-validated against its balance invariant first; an imbalance is an
// internal bug and nothing is persisted.
func (s *LedgerService) Record(tx *gorm.DB, sale *models.Sale, plan *SplitPlan) ([]models.CommissionLedgerEntry, error) {
	if !plan.Balanced() {
		err := &LedgerConsistencyError{
			SaleID: sale.ID,
			Detail: fmt.Sprintf(
				"fee %s + recipients %s + net %s != gross %s",
				plan.PlatformFee.StringFixed(2), plan.RecipientTotal().StringFixed(2),
				plan.ClinicNet.StringFixed(2), plan.TotalGross.StringFixed(2),
			),
		}
		logrus.WithFields(logrus.Fields{
			"sale_id": sale.ID,
			"plan":    plan,
		}).Error("split plan does not balance; refusing to record")
		return nil, err
	}

	lineIDs := make([]uuid.UUID, len(sale.Lines))
	for i, line := range sale.Lines {
		lineIDs[i] = line.ID
	}

	var existing []models.CommissionLedgerEntry
	var existingDisbursements int64
	if len(lineIDs) > 0 {
		if err := tx.Where("sale_line_id IN ?", lineIDs).Find(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to check existing ledger entries: %w", err)
		}
		// A plan can settle entirely to providers, so the disbursement table
		// must be checked too or a re-record would hit its unique index.
		if err := tx.Model(&models.ProviderDisbursement{}).
			Where("sale_line_id IN ?", lineIDs).Count(&existingDisbursements).Error; err != nil {
			return nil, fmt.Errorf("failed to check existing disbursements: %w", err)
		}
	}
	if len(existing) > 0 || existingDisbursements > 0 {
		// Sale already recorded (duplicate finalize); the unique constraints
		// on (sale_line_id, professional_id) and disbursement sale_line_id
		// are the safety net underneath.
		return existing, nil
	}

	entries, disbursements := BuildEntries(sale, plan)

	for i := range entries {
		if err := tx.Create(&entries[i]).Error; err != nil {
			return nil, fmt.Errorf("failed to record ledger entry: %w", err)
		}
	}
	for i := range disbursements {
		if err := tx.Create(&disbursements[i]).Error; err != nil {
			return nil, fmt.Errorf("failed to record provider disbursement: %w", err)
		}
	}

	return entries, nil
}

// ClosePeriod pays out every pending commission for one professional up to
// periodEnd in a single atomic batch. All selected entries flip to paid and
// a closing batch with a payout reference is created, or nothing happens.
func (s *LedgerService) ClosePeriod(clinicID, closedByID uuid.UUID, req *ClosePeriodRequest) (*models.ClosingBatch, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var batch *models.ClosingBatch
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var entries []models.CommissionLedgerEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("clinic_id = ? AND professional_id = ? AND status = ? AND created_at <= ?",
				clinicID, req.ProfessionalID, models.LedgerStatusPending, req.PeriodEnd).
			Find(&entries).Error; err != nil {
			return fmt.Errorf("failed to select pending entries: %w", err)
		}

		if len(entries) == 0 {
			return ErrEmptyClosingPeriod
		}

		total := decimal.Zero
		entryIDs := make([]uuid.UUID, len(entries))
		for i, entry := range entries {
			total = total.Add(entry.Amount)
			entryIDs[i] = entry.ID
		}

		reference, err := utils.GeneratePayoutReference()
		if err != nil {
			return fmt.Errorf("failed to generate payout reference: %w", err)
		}

		batch = &models.ClosingBatch{
			ClinicID:        clinicID,
			ProfessionalID:  req.ProfessionalID,
			PeriodEnd:       req.PeriodEnd,
			TotalAmount:     total,
			EntryCount:      len(entries),
			PayoutMethod:    req.PayoutMethod,
			PayoutReference: reference,
			ClosedByID:      closedByID,
		}
		if err := tx.Create(batch).Error; err != nil {
			return fmt.Errorf("failed to create closing batch: %w", err)
		}

		now := time.Now()
		result := tx.Model(&models.CommissionLedgerEntry{}).
			Where("id IN ? AND status = ?", entryIDs, models.LedgerStatusPending).
			Updates(map[string]interface{}{
				"status":           models.LedgerStatusPaid,
				"paid_at":          now,
				"closing_batch_id": batch.ID,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to mark entries paid: %w", result.Error)
		}
		if result.RowsAffected != int64(len(entryIDs)) {
			// A concurrent close raced us; abort the whole batch.
			return fmt.Errorf("expected to close %d entries, closed %d", len(entryIDs), result.RowsAffected)
		}

		// Reflect the update on the snapshots we return with the batch.
		for i := range entries {
			entries[i].Status = models.LedgerStatusPaid
			entries[i].PaidAt = &now
			entries[i].ClosingBatchID = &batch.ID
		}
		batch.Entries = entries

		clinicIDCopy := clinicID
		batchID := batch.ID
		audit := &models.AuditLog{
			UserID:       &closedByID,
			ClinicID:     &clinicIDCopy,
			Action:       models.AuditActionPeriodClosed,
			ResourceType: "closing_batch",
			ResourceID:   &batchID,
			NewValues: models.JSONB{
				"total_amount": total.StringFixed(2),
				"entry_count":  len(entries),
				"period_end":   req.PeriodEnd,
			},
		}
		if err := tx.Create(audit).Error; err != nil {
			return fmt.Errorf("failed to record closing audit entry: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterClose(batch)
	return batch, nil
}

// afterClose runs the non-transactional follow-ups: statement upload and
// payout notification. Failures are logged, never surfaced to the close.
func (s *LedgerService) afterClose(batch *models.ClosingBatch) {
	if s.statementService != nil {
		url, err := s.statementService.UploadClosingStatement(batch)
		if err != nil {
			logrus.WithError(err).WithField("batch_id", batch.ID).Warn("failed to upload closing statement")
		} else if url != "" {
			batch.StatementURL = url
			if err := s.db.Model(batch).Update("statement_url", url).Error; err != nil {
				logrus.WithError(err).Warn("failed to store statement URL")
			}
		}
	}

	if s.notificationService != nil {
		var professional models.Professional
		if err := s.db.First(&professional, batch.ProfessionalID).Error; err == nil {
			if err := s.notificationService.SendClosingPaidEmail(&professional, batch); err != nil {
				logrus.WithError(err).WithField("batch_id", batch.ID).Warn("failed to send payout notification")
			}
		}
	}
}

// Summary aggregates a professional's commissions for the reporting
// dashboard: everything generated in the window, what is still pending and
// what has been paid.
func (s *LedgerService) Summary(clinicID, professionalID uuid.UUID, from, to time.Time) (*CommissionSummary, error) {
	summary := &CommissionSummary{ProfessionalID: professionalID}

	base := func() *gorm.DB {
		return s.db.Model(&models.CommissionLedgerEntry{}).
			Where("clinic_id = ? AND professional_id = ? AND created_at >= ? AND created_at <= ?",
				clinicID, professionalID, from, to)
	}

	if err := base().Select("COALESCE(SUM(amount), 0)").Scan(&summary.TotalGenerated).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate generated commissions: %w", err)
	}
	if err := base().Where("status = ?", models.LedgerStatusPending).
		Select("COALESCE(SUM(amount), 0)").Scan(&summary.TotalPending).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate pending commissions: %w", err)
	}
	if err := base().Where("status = ?", models.LedgerStatusPaid).
		Select("COALESCE(SUM(amount), 0)").Scan(&summary.TotalPaid).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate paid commissions: %w", err)
	}

	return summary, nil
}

// ListEntries returns a professional's ledger entries, newest first.
func (s *LedgerService) ListEntries(clinicID uuid.UUID, professionalID *uuid.UUID, status *models.LedgerStatus, params utils.PaginationParams) ([]models.CommissionLedgerEntry, int64, error) {
	query := s.db.Model(&models.CommissionLedgerEntry{}).
		Where("clinic_id = ?", clinicID).
		Preload("Rule").
		Preload("SaleLine")

	if professionalID != nil {
		query = query.Where("professional_id = ?", *professionalID)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	query = utils.ApplyPeriod(query, params, "commission_ledger_entries.created_at")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "status", "paid_at"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var entries []models.CommissionLedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	return entries, total, nil
}

// ListBatches returns a clinic's closing batches, newest first.
func (s *LedgerService) ListBatches(clinicID uuid.UUID, params utils.PaginationParams) ([]models.ClosingBatch, int64, error) {
	query := s.db.Model(&models.ClosingBatch{}).
		Where("clinic_id = ?", clinicID).
		Preload("Professional")
	query = utils.ApplyPeriod(query, params, "closing_batches.created_at")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count closing batches: %w", err)
	}

	allowedSortFields := []string{"created_at", "total_amount", "period_end"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var batches []models.ClosingBatch
	if err := query.Find(&batches).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch closing batches: %w", err)
	}

	return batches, total, nil
}
