// internal/models/contract.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProviderContract is a payout agreement with an external/partner
// professional for one service. At most one active contract may exist per
// (clinic, provider, service).
type ProviderContract struct {
	BaseModel
	ClinicID   uuid.UUID          `json:"clinic_id" gorm:"type:uuid;not null;index:idx_provider_contracts_scope"`
	ProviderID uuid.UUID          `json:"provider_id" gorm:"type:uuid;not null;index:idx_provider_contracts_scope"`
	ServiceID  uuid.UUID          `json:"service_id" gorm:"type:uuid;not null;index:idx_provider_contracts_scope"`
	PayoutKind ContractPayoutKind `json:"payout_kind" gorm:"type:varchar(30);not null"`
	Value      decimal.Decimal    `json:"value" gorm:"type:decimal(12,2);not null"`
	Active     bool               `json:"active" gorm:"default:true;index"`
	Notes      string             `json:"notes,omitempty" gorm:"type:text"`

	// Relationships
	Clinic   Clinic       `json:"clinic,omitempty" gorm:"foreignKey:ClinicID"`
	Provider Professional `json:"provider,omitempty" gorm:"foreignKey:ProviderID"`
}

func (ProviderContract) TableName() string {
	return "provider_contracts"
}

// ProviderShare computes the provider's take for a line of the given gross
// amount. Fixed values are capped at the line gross; margin contracts pay the
// provider the remainder after the clinic's retained percentage, rounded
// half-to-even at the currency minor unit.
func (c *ProviderContract) ProviderShare(gross decimal.Decimal) decimal.Decimal {
	if gross.Sign() <= 0 {
		return decimal.Zero
	}
	switch c.PayoutKind {
	case ContractPayoutFixedProviderValue:
		if c.Value.GreaterThan(gross) {
			return gross
		}
		return c.Value
	case ContractPayoutPercentageClinicMargin:
		providerRate := decimal.NewFromInt(100).Sub(c.Value)
		return gross.Mul(providerRate).Div(decimal.NewFromInt(100)).RoundBank(2)
	}
	return decimal.Zero
}
