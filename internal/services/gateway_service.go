// internal/services/gateway_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/transfer"
	"gorm.io/gorm"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

// GatewayService maps a settlement plan onto the payment gateway: one
// transfer instruction per recipient plus the platform fee. The engine never
// calls this directly; the finalization handler hands the recorded plan over.
type GatewayService struct {
	db     *gorm.DB
	config *config.Config
}

// TransferInstruction is the gateway-agnostic (recipient, amount, currency)
// tuple consumed by the disbursement sink.
type TransferInstruction struct {
	RecipientID   uuid.UUID            `json:"recipient_id"`
	RecipientKind models.RecipientKind `json:"recipient_kind"`
	Destination   string               `json:"destination"`
	Amount        int64                `json:"amount"` // minor units
	Currency      string               `json:"currency"`
	Reference     string               `json:"reference"`
}

func NewGatewayService(db *gorm.DB, config *config.Config) *GatewayService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &GatewayService{
		db:     db,
		config: config,
	}
}

// BuildInstructions converts a plan's recipients into transfer instructions,
// resolving each recipient's payout destination. Recipients without a
// gateway account are skipped and reported back for manual settlement.
func (s *GatewayService) BuildInstructions(plan *SplitPlan) ([]TransferInstruction, []uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(plan.Recipients))
	for _, r := range plan.Recipients {
		ids = append(ids, r.RecipientID)
	}

	accounts := make(map[uuid.UUID]string, len(ids))
	if len(ids) > 0 {
		var professionals []models.Professional
		if err := s.db.Where("id IN ?", ids).Find(&professionals).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to load payout destinations: %w", err)
		}
		for _, p := range professionals {
			accounts[p.ID] = p.GatewayAccountID
		}
	}

	var instructions []TransferInstruction
	var unmapped []uuid.UUID
	for _, r := range plan.Recipients {
		destination := accounts[r.RecipientID]
		if destination == "" {
			unmapped = append(unmapped, r.RecipientID)
			continue
		}
		instructions = append(instructions, TransferInstruction{
			RecipientID:   r.RecipientID,
			RecipientKind: r.RecipientKind,
			Destination:   destination,
			Amount:        r.Amount.Mul(oneHundred).IntPart(),
			Currency:      r.Currency,
			Reference:     fmt.Sprintf("sale:%s line:%s", plan.SaleID, r.SaleLineID),
		})
	}

	return instructions, unmapped, nil
}

// SubmitProviderPayouts pushes a recorded plan's provider disbursements
// through the gateway and stores the transfer references. Professional
// commissions are not sent here; they accumulate in the ledger until a
// closing run pays them in one batch.
func (s *GatewayService) SubmitProviderPayouts(plan *SplitPlan) error {
	if s.config.Payment.StripeSecretKey == "" {
		logrus.WithField("sale_id", plan.SaleID).Info("gateway disabled, leaving provider disbursements pending")
		return nil
	}

	instructions, unmapped, err := s.BuildInstructions(plan)
	if err != nil {
		return err
	}
	for _, id := range unmapped {
		logrus.WithFields(logrus.Fields{
			"sale_id":      plan.SaleID,
			"recipient_id": id,
		}).Warn("recipient has no gateway account, disbursement left pending")
	}

	for _, instruction := range instructions {
		if instruction.RecipientKind != models.RecipientKindProvider {
			continue
		}

		params := &stripe.TransferParams{
			Amount:      stripe.Int64(instruction.Amount),
			Currency:    stripe.String(instruction.Currency),
			Destination: stripe.String(instruction.Destination),
		}
		params.AddMetadata("reference", instruction.Reference)

		tr, err := transfer.New(params)
		if err != nil {
			s.markDisbursementFailed(plan.SaleID, instruction.RecipientID)
			return fmt.Errorf("gateway transfer failed for recipient %s: %w", instruction.RecipientID, err)
		}

		now := time.Now()
		if err := s.db.Model(&models.ProviderDisbursement{}).
			Where("provider_id = ? AND sale_line_id IN (SELECT id FROM sale_lines WHERE sale_id = ?) AND status = ?",
				instruction.RecipientID, plan.SaleID, models.DisbursementStatusPending).
			Updates(map[string]interface{}{
				"status":            models.DisbursementStatusSubmitted,
				"gateway_reference": tr.ID,
				"submitted_at":      now,
			}).Error; err != nil {
			return fmt.Errorf("failed to store transfer reference: %w", err)
		}
	}

	return nil
}

func (s *GatewayService) markDisbursementFailed(saleID, providerID uuid.UUID) {
	if err := s.db.Model(&models.ProviderDisbursement{}).
		Where("provider_id = ? AND sale_line_id IN (SELECT id FROM sale_lines WHERE sale_id = ?) AND status = ?",
			providerID, saleID, models.DisbursementStatusPending).
		Update("status", models.DisbursementStatusFailed).Error; err != nil {
		logrus.WithError(err).Warn("failed to mark disbursement failed")
	}
}

// RetryDisbursement resubmits a single failed provider payout.
func (s *GatewayService) RetryDisbursement(clinicID, disbursementID uuid.UUID) error {
	var disbursement models.ProviderDisbursement
	if err := s.db.Preload("Provider").
		Where("id = ? AND clinic_id = ?", disbursementID, clinicID).
		First(&disbursement).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("disbursement not found")
		}
		return fmt.Errorf("database error: %w", err)
	}

	if disbursement.Status != models.DisbursementStatusFailed && disbursement.Status != models.DisbursementStatusPending {
		return errors.New("disbursement is not retryable")
	}
	if disbursement.Provider.GatewayAccountID == "" {
		return errors.New("provider has no gateway account")
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(disbursement.Amount.Mul(oneHundred).IntPart()),
		Currency:    stripe.String(disbursement.Currency),
		Destination: stripe.String(disbursement.Provider.GatewayAccountID),
	}
	params.AddMetadata("disbursement_id", disbursement.ID.String())

	tr, err := transfer.New(params)
	if err != nil {
		return fmt.Errorf("gateway transfer failed: %w", err)
	}

	now := time.Now()
	disbursement.Status = models.DisbursementStatusSubmitted
	disbursement.GatewayReference = tr.ID
	disbursement.SubmittedAt = &now
	if err := s.db.Save(&disbursement).Error; err != nil {
		return fmt.Errorf("failed to update disbursement: %w", err)
	}

	return nil
}
