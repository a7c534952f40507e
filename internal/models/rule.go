// internal/models/rule.go
package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionRule defines how much an internal professional earns on a sale
// line. Scope binds the rule to one item, one category, or the whole clinic.
// Exactly one of ItemID/CategoryID is set for item/category scope; global
// rules have neither.
type CommissionRule struct {
	BaseModel
	ClinicID      uuid.UUID         `json:"clinic_id" gorm:"type:uuid;not null;index:idx_commission_rules_clinic_scope"`
	Scope         RuleScope         `json:"scope" gorm:"type:varchar(20);not null;index:idx_commission_rules_clinic_scope"`
	ItemID        *uuid.UUID        `json:"item_id,omitempty" gorm:"type:uuid;index"`
	CategoryID    *uuid.UUID        `json:"category_id,omitempty" gorm:"type:uuid;index"`
	PayoutKind    RulePayoutKind    `json:"payout_kind" gorm:"type:varchar(20);not null"`
	Value         decimal.Decimal   `json:"value" gorm:"type:decimal(12,2);not null"`
	AppliesToRole *ProfessionalRole `json:"applies_to_role,omitempty" gorm:"type:varchar(30)"`
	Active        bool              `json:"active" gorm:"default:true;index"`
	Notes         string            `json:"notes,omitempty" gorm:"type:text"`

	// Relationships
	Clinic Clinic `json:"clinic,omitempty" gorm:"foreignKey:ClinicID"`
}

func (CommissionRule) TableName() string {
	return "commission_rules"
}

// MatchesLine reports whether the rule's scope binding covers the line.
// Role restrictions are checked separately so the resolver can fall through.
func (r *CommissionRule) MatchesLine(line *SaleLine) bool {
	if !r.Active {
		return false
	}
	switch r.Scope {
	case RuleScopeItem:
		return r.ItemID != nil && *r.ItemID == line.ServiceOrProductID
	case RuleScopeCategory:
		return r.CategoryID != nil && line.CategoryID != nil && *r.CategoryID == *line.CategoryID
	case RuleScopeGlobal:
		return true
	}
	return false
}

// RoleAllows reports whether the performing professional satisfies the rule's
// optional role restriction. A nil performer only passes unrestricted rules.
func (r *CommissionRule) RoleAllows(performer *Professional) bool {
	if r.AppliesToRole == nil {
		return true
	}
	if performer == nil {
		return false
	}
	return performer.HasRole(*r.AppliesToRole)
}
