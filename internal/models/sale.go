// internal/models/sale.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is a completed visit's bill. Lines are immutable once the sale is
// finalized; FinalizedAt doubles as the unique finalization marker that
// serializes duplicate submits.
type Sale struct {
	BaseModel
	ClinicID    uuid.UUID  `json:"clinic_id" gorm:"type:uuid;not null;index"`
	TutorID     *uuid.UUID `json:"tutor_id,omitempty" gorm:"type:uuid;index"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty" gorm:"type:uuid;index"`
	Status      SaleStatus `json:"status" gorm:"type:varchar(20);default:'open';index"`
	FinalizedAt *time.Time `json:"finalized_at"`
	Notes       string     `json:"notes,omitempty" gorm:"type:text"`

	// Relationships
	Clinic Clinic     `json:"clinic,omitempty" gorm:"foreignKey:ClinicID"`
	Lines  []SaleLine `json:"lines,omitempty" gorm:"foreignKey:SaleID"`
}

func (s *Sale) TotalGross() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.GrossAmount)
	}
	return total
}

type SaleLine struct {
	BaseModel
	SaleID             uuid.UUID       `json:"sale_id" gorm:"type:uuid;not null;index"`
	ServiceOrProductID uuid.UUID       `json:"service_or_product_id" gorm:"type:uuid;not null;index"`
	Description        string          `json:"description" gorm:"size:255"`
	CategoryID         *uuid.UUID      `json:"category_id,omitempty" gorm:"type:uuid;index"`
	PerformedByID      *uuid.UUID      `json:"performed_by_id,omitempty" gorm:"type:uuid;index"`
	GrossAmount        decimal.Decimal `json:"gross_amount" gorm:"type:decimal(12,2);not null"`

	// Relationships
	Sale        Sale          `json:"sale,omitempty" gorm:"foreignKey:SaleID"`
	PerformedBy *Professional `json:"performed_by,omitempty" gorm:"foreignKey:PerformedByID"`
}

func (SaleLine) TableName() string {
	return "sale_lines"
}
