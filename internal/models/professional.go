// internal/models/professional.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// Professional is a staff member or external partner attached to a clinic.
// The identity service shares this table; the finance module only reads it.
type Professional struct {
	BaseModel
	ClinicID         uuid.UUID          `json:"clinic_id" gorm:"type:uuid;not null;index"`
	Username         string             `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email            string             `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FullName         string             `json:"full_name" gorm:"size:255;not null"`
	PasswordHash     string             `json:"-" gorm:"size:255;not null"`
	Roles            pq.StringArray     `json:"roles" gorm:"type:text[]"`
	IsExternal       bool               `json:"is_external" gorm:"default:false"`
	Status           ProfessionalStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	PixKey           string             `json:"pix_key,omitempty" gorm:"size:140"`
	GatewayAccountID string             `json:"gateway_account_id,omitempty" gorm:"size:255"`
	ProfileData      JSONB              `json:"profile_data" gorm:"type:jsonb"`
	LastLoginAt      *time.Time         `json:"last_login_at"`

	// Relationships
	Clinic        Clinic                 `json:"clinic,omitempty" gorm:"foreignKey:ClinicID"`
	LedgerEntries []CommissionLedgerEntry `json:"ledger_entries,omitempty" gorm:"foreignKey:ProfessionalID"`
}

func (p *Professional) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = string(hashedPassword)
	return nil
}

func (p *Professional) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password))
}

func (p *Professional) HasRole(role ProfessionalRole) bool {
	for _, r := range p.Roles {
		if r == string(role) {
			return true
		}
	}
	return false
}
