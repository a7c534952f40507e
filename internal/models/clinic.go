// internal/models/clinic.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Clinic struct {
	BaseModel
	Name        string `json:"name" gorm:"size:255;not null"`
	LegalName   string `json:"legal_name" gorm:"size:255"`
	TaxID       string `json:"tax_id" gorm:"size:20;uniqueIndex"`
	Email       string `json:"email" gorm:"size:255"`
	Phone       string `json:"phone" gorm:"size:30"`
	City        string `json:"city" gorm:"size:100"`
	State       string `json:"state" gorm:"size:2"`
	IsActive    bool   `json:"is_active" gorm:"default:true"`
	ProfileData JSONB  `json:"profile_data" gorm:"type:jsonb"`

	// Relationships
	BillingProfile *ClinicBillingProfile `json:"billing_profile,omitempty" gorm:"foreignKey:ClinicID"`
	Professionals  []Professional        `json:"professionals,omitempty" gorm:"foreignKey:ClinicID"`
}

// ClinicBillingProfile carries the per-clinic platform fee terms.
// PlatformFeeRate nil means "use the platform default"; an explicit zero
// means the clinic pays no platform fee.
type ClinicBillingProfile struct {
	BaseModel
	ClinicID              uuid.UUID        `json:"clinic_id" gorm:"type:uuid;not null;uniqueIndex"`
	PlatformFeeRate       *decimal.Decimal `json:"platform_fee_rate,omitempty" gorm:"type:decimal(5,2)"`
	AcceptedHardwareOffer bool             `json:"accepted_hardware_offer" gorm:"default:false"`
	PromotionalRateEndsAt *time.Time       `json:"promotional_rate_ends_at"`
	Currency              string           `json:"currency" gorm:"size:3;default:'BRL'"`
	GatewayMerchantID     string           `json:"gateway_merchant_id,omitempty" gorm:"size:255"`

	// Relationships
	Clinic Clinic `json:"clinic,omitempty" gorm:"foreignKey:ClinicID"`
}

// PromotionActive reports whether the promotional platform rate applies at t.
// The window end is inclusive.
func (p *ClinicBillingProfile) PromotionActive(t time.Time) bool {
	if !p.AcceptedHardwareOffer || p.PromotionalRateEndsAt == nil {
		return false
	}
	return !t.After(*p.PromotionalRateEndsAt)
}
