// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type RuleScope string

const (
	RuleScopeItem     RuleScope = "item"
	RuleScopeCategory RuleScope = "category"
	RuleScopeGlobal   RuleScope = "global"
)

type RulePayoutKind string

const (
	RulePayoutFixedAmount RulePayoutKind = "fixed_amount"
	RulePayoutPercentage  RulePayoutKind = "percentage"
)

type ContractPayoutKind string

const (
	ContractPayoutFixedProviderValue     ContractPayoutKind = "fixed_provider_value"
	ContractPayoutPercentageClinicMargin ContractPayoutKind = "percentage_clinic_margin"
)

type RecipientKind string

const (
	RecipientKindProvider     RecipientKind = "provider"
	RecipientKindProfessional RecipientKind = "professional"
)

type ProfessionalRole string

const (
	RoleVeterinarian ProfessionalRole = "veterinarian"
	RoleTechnician   ProfessionalRole = "technician"
	RoleGroomer      ProfessionalRole = "groomer"
	RoleReceptionist ProfessionalRole = "receptionist"
	RoleClinicAdmin  ProfessionalRole = "clinic_admin"
)

type ProfessionalStatus string

const (
	ProfessionalStatusActive    ProfessionalStatus = "active"
	ProfessionalStatusSuspended ProfessionalStatus = "suspended"
	ProfessionalStatusInactive  ProfessionalStatus = "inactive"
)

type SaleStatus string

const (
	SaleStatusOpen      SaleStatus = "open"
	SaleStatusFinalized SaleStatus = "finalized"
	SaleStatusCanceled  SaleStatus = "canceled"
)

type LedgerStatus string

const (
	LedgerStatusPending LedgerStatus = "pending"
	LedgerStatusPaid    LedgerStatus = "paid"
)

type DisbursementStatus string

const (
	DisbursementStatusPending   DisbursementStatus = "pending"
	DisbursementStatusSubmitted DisbursementStatus = "submitted"
	DisbursementStatusSettled   DisbursementStatus = "settled"
	DisbursementStatusFailed    DisbursementStatus = "failed"
)

type PayoutMethod string

const (
	PayoutMethodPix          PayoutMethod = "pix"
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
)
