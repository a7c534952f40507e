// internal/models/ledger.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionLedgerEntry is the durable record of one commission owed to an
// internal professional for one sale line. Created exactly once per
// (sale_line_id, professional_id); only Status/PaidAt/ClosingBatchID change
// after creation.
type CommissionLedgerEntry struct {
	BaseModel
	ClinicID       uuid.UUID       `json:"clinic_id" gorm:"type:uuid;not null;index"`
	ProfessionalID uuid.UUID       `json:"professional_id" gorm:"type:uuid;not null;uniqueIndex:idx_ledger_line_professional;index"`
	SaleLineID     uuid.UUID       `json:"sale_line_id" gorm:"type:uuid;not null;uniqueIndex:idx_ledger_line_professional"`
	RuleID         uuid.UUID       `json:"rule_id" gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Status         LedgerStatus    `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaidAt         *time.Time      `json:"paid_at"`
	ClosingBatchID *uuid.UUID      `json:"closing_batch_id,omitempty" gorm:"type:uuid;index"`

	// Relationships
	Professional Professional   `json:"professional,omitempty" gorm:"foreignKey:ProfessionalID"`
	SaleLine     SaleLine       `json:"sale_line,omitempty" gorm:"foreignKey:SaleLineID"`
	Rule         CommissionRule `json:"rule,omitempty" gorm:"foreignKey:RuleID"`
	ClosingBatch *ClosingBatch  `json:"closing_batch,omitempty" gorm:"foreignKey:ClosingBatchID"`
}

func (CommissionLedgerEntry) TableName() string {
	return "commission_ledger_entries"
}

// ClosingBatch records one atomic payout run: every pending entry selected
// for a professional up to PeriodEnd, paid through a single transfer.
type ClosingBatch struct {
	BaseModel
	ClinicID        uuid.UUID       `json:"clinic_id" gorm:"type:uuid;not null;index"`
	ProfessionalID  uuid.UUID       `json:"professional_id" gorm:"type:uuid;not null;index"`
	PeriodEnd       time.Time       `json:"period_end" gorm:"not null"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	EntryCount      int             `json:"entry_count" gorm:"not null"`
	PayoutMethod    PayoutMethod    `json:"payout_method" gorm:"type:varchar(20);not null"`
	PayoutReference string          `json:"payout_reference" gorm:"size:64;uniqueIndex"`
	StatementURL    string          `json:"statement_url,omitempty" gorm:"size:512"`
	ClosedByID      uuid.UUID       `json:"closed_by_id" gorm:"type:uuid;not null"`

	// Relationships
	Professional Professional            `json:"professional,omitempty" gorm:"foreignKey:ProfessionalID"`
	Entries      []CommissionLedgerEntry `json:"entries,omitempty" gorm:"foreignKey:ClosingBatchID"`
}

func (ClosingBatch) TableName() string {
	return "closing_batches"
}

// ProviderDisbursement is the outbound payout owed to an external provider
// for one sale line, handed to the gateway adapter for actual movement.
type ProviderDisbursement struct {
	BaseModel
	ClinicID         uuid.UUID          `json:"clinic_id" gorm:"type:uuid;not null;index"`
	ProviderID       uuid.UUID          `json:"provider_id" gorm:"type:uuid;not null;index"`
	SaleLineID       uuid.UUID          `json:"sale_line_id" gorm:"type:uuid;not null;uniqueIndex"`
	ContractID       uuid.UUID          `json:"contract_id" gorm:"type:uuid;not null;index"`
	Amount           decimal.Decimal    `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency         string             `json:"currency" gorm:"size:3;default:'BRL'"`
	Status           DisbursementStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	GatewayReference string             `json:"gateway_reference,omitempty" gorm:"size:255"`
	SubmittedAt      *time.Time         `json:"submitted_at"`

	// Relationships
	Provider Professional     `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
	SaleLine SaleLine         `json:"sale_line,omitempty" gorm:"foreignKey:SaleLineID"`
	Contract ProviderContract `json:"contract,omitempty" gorm:"foreignKey:ContractID"`
}

func (ProviderDisbursement) TableName() string {
	return "provider_disbursements"
}
