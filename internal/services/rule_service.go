// internal/services/rule_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vetlink/vetlink-backend/internal/cache"
	"github.com/vetlink/vetlink-backend/internal/models"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

// RuleService owns commission-rule and provider-contract administration.
// Every write validates the scope invariant before persistence and
// invalidates the clinic's cached rule set.
type RuleService struct {
	db        *gorm.DB
	ruleCache *cache.RuleCache
}

func NewRuleService(db *gorm.DB, ruleCache *cache.RuleCache) *RuleService {
	return &RuleService{
		db:        db,
		ruleCache: ruleCache,
	}
}

type CreateRuleRequest struct {
	Scope         models.RuleScope         `json:"scope" validate:"required,oneof=item category global"`
	ItemID        *uuid.UUID               `json:"item_id,omitempty"`
	CategoryID    *uuid.UUID               `json:"category_id,omitempty"`
	PayoutKind    models.RulePayoutKind    `json:"payout_kind" validate:"required,oneof=fixed_amount percentage"`
	Value         decimal.Decimal          `json:"value" validate:"required"`
	AppliesToRole *models.ProfessionalRole `json:"applies_to_role,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
}

type UpdateRuleRequest struct {
	Value         *decimal.Decimal         `json:"value,omitempty"`
	AppliesToRole *models.ProfessionalRole `json:"applies_to_role,omitempty"`
	Notes         *string                  `json:"notes,omitempty"`
	Active        *bool                    `json:"active,omitempty"`
}

type CreateContractRequest struct {
	ProviderID uuid.UUID                 `json:"provider_id" validate:"required"`
	ServiceID  uuid.UUID                 `json:"service_id" validate:"required"`
	PayoutKind models.ContractPayoutKind `json:"payout_kind" validate:"required,oneof=fixed_provider_value percentage_clinic_margin"`
	Value      decimal.Decimal           `json:"value" validate:"required"`
	Notes      string                    `json:"notes,omitempty"`
}

// validateRuleConfig enforces the scope invariant: exactly one of item/
// category binding depending on scope, none for global, sane payout values.
func validateRuleConfig(scope models.RuleScope, itemID, categoryID *uuid.UUID, payoutKind models.RulePayoutKind, value decimal.Decimal) error {
	switch scope {
	case models.RuleScopeItem:
		if itemID == nil {
			return &InvalidRuleConfigurationError{Field: "item_id", Reason: "is required for item-scoped rules"}
		}
		if categoryID != nil {
			return &InvalidRuleConfigurationError{Field: "category_id", Reason: "must be empty for item-scoped rules"}
		}
	case models.RuleScopeCategory:
		if categoryID == nil {
			return &InvalidRuleConfigurationError{Field: "category_id", Reason: "is required for category-scoped rules"}
		}
		if itemID != nil {
			return &InvalidRuleConfigurationError{Field: "item_id", Reason: "must be empty for category-scoped rules"}
		}
	case models.RuleScopeGlobal:
		if itemID != nil || categoryID != nil {
			return &InvalidRuleConfigurationError{Field: "scope", Reason: "global rules cannot bind an item or category"}
		}
	default:
		return &InvalidRuleConfigurationError{Field: "scope", Reason: "is not a valid rule scope"}
	}

	if value.Sign() < 0 {
		return &InvalidRuleConfigurationError{Field: "value", Reason: "cannot be negative"}
	}
	if payoutKind == models.RulePayoutPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return &InvalidRuleConfigurationError{Field: "value", Reason: "percentage cannot exceed 100"}
	}

	return nil
}

func (s *RuleService) CreateRule(ctx context.Context, clinicID uuid.UUID, req *CreateRuleRequest) (*models.CommissionRule, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := validateRuleConfig(req.Scope, req.ItemID, req.CategoryID, req.PayoutKind, req.Value); err != nil {
		return nil, err
	}

	rule := &models.CommissionRule{
		ClinicID:      clinicID,
		Scope:         req.Scope,
		ItemID:        req.ItemID,
		CategoryID:    req.CategoryID,
		PayoutKind:    req.PayoutKind,
		Value:         req.Value,
		AppliesToRole: req.AppliesToRole,
		Active:        true,
		Notes:         req.Notes,
	}

	if err := s.db.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create commission rule: %w", err)
	}

	s.invalidate(ctx, clinicID)
	return rule, nil
}

func (s *RuleService) UpdateRule(ctx context.Context, clinicID, ruleID uuid.UUID, req *UpdateRuleRequest) (*models.CommissionRule, error) {
	var rule models.CommissionRule
	if err := s.db.Where("id = ? AND clinic_id = ?", ruleID, clinicID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("commission rule not found")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if req.Value != nil {
		if err := validateRuleConfig(rule.Scope, rule.ItemID, rule.CategoryID, rule.PayoutKind, *req.Value); err != nil {
			return nil, err
		}
		rule.Value = *req.Value
	}
	if req.AppliesToRole != nil {
		rule.AppliesToRole = req.AppliesToRole
	}
	if req.Notes != nil {
		rule.Notes = *req.Notes
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	if err := s.db.Save(&rule).Error; err != nil {
		return nil, fmt.Errorf("failed to update commission rule: %w", err)
	}

	s.invalidate(ctx, clinicID)
	return &rule, nil
}

// DeleteRule soft-disables a rule that historical ledger entries reference
// (audit requirement) and soft-deletes one that was never used.
func (s *RuleService) DeleteRule(ctx context.Context, clinicID, ruleID uuid.UUID) error {
	var rule models.CommissionRule
	if err := s.db.Where("id = ? AND clinic_id = ?", ruleID, clinicID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("commission rule not found")
		}
		return fmt.Errorf("database error: %w", err)
	}

	var referenceCount int64
	if err := s.db.Model(&models.CommissionLedgerEntry{}).
		Where("rule_id = ?", ruleID).Count(&referenceCount).Error; err != nil {
		return fmt.Errorf("failed to count rule references: %w", err)
	}

	if referenceCount > 0 {
		rule.Active = false
		if err := s.db.Save(&rule).Error; err != nil {
			return fmt.Errorf("failed to disable commission rule: %w", err)
		}
	} else {
		if err := s.db.Delete(&rule).Error; err != nil {
			return fmt.Errorf("failed to delete commission rule: %w", err)
		}
	}

	s.invalidate(ctx, clinicID)
	return nil
}

func (s *RuleService) ListRules(clinicID uuid.UUID, params utils.PaginationParams) ([]models.CommissionRule, int64, error) {
	query := s.db.Model(&models.CommissionRule{}).Where("clinic_id = ?", clinicID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count commission rules: %w", err)
	}

	allowedSortFields := []string{"created_at", "scope", "value"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var rules []models.CommissionRule
	if err := query.Find(&rules).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch commission rules: %w", err)
	}

	return rules, total, nil
}

func (s *RuleService) CreateContract(ctx context.Context, clinicID uuid.UUID, req *CreateContractRequest) (*models.ProviderContract, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if req.Value.Sign() < 0 {
		return nil, &InvalidRuleConfigurationError{Field: "value", Reason: "cannot be negative"}
	}
	if req.PayoutKind == models.ContractPayoutPercentageClinicMargin && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &InvalidRuleConfigurationError{Field: "value", Reason: "margin percentage cannot exceed 100"}
	}

	var provider models.Professional
	if err := s.db.Where("id = ? AND clinic_id = ?", req.ProviderID, clinicID).First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("provider not found in clinic")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !provider.IsExternal {
		return nil, &InvalidRuleConfigurationError{Field: "provider_id", Reason: "must reference an external provider"}
	}

	// At most one active contract per (clinic, provider, service).
	var existing models.ProviderContract
	err := s.db.Where("clinic_id = ? AND provider_id = ? AND service_id = ? AND active = ?",
		clinicID, req.ProviderID, req.ServiceID, true).First(&existing).Error
	if err == nil {
		return nil, ErrDuplicateContract
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	contract := &models.ProviderContract{
		ClinicID:   clinicID,
		ProviderID: req.ProviderID,
		ServiceID:  req.ServiceID,
		PayoutKind: req.PayoutKind,
		Value:      req.Value,
		Active:     true,
		Notes:      req.Notes,
	}

	if err := s.db.Create(contract).Error; err != nil {
		return nil, fmt.Errorf("failed to create provider contract: %w", err)
	}

	s.invalidate(ctx, clinicID)
	return contract, nil
}

func (s *RuleService) DeactivateContract(ctx context.Context, clinicID, contractID uuid.UUID) error {
	var contract models.ProviderContract
	if err := s.db.Where("id = ? AND clinic_id = ?", contractID, clinicID).First(&contract).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("provider contract not found")
		}
		return fmt.Errorf("database error: %w", err)
	}

	contract.Active = false
	if err := s.db.Save(&contract).Error; err != nil {
		return fmt.Errorf("failed to deactivate provider contract: %w", err)
	}

	s.invalidate(ctx, clinicID)
	return nil
}

func (s *RuleService) ListContracts(clinicID uuid.UUID, params utils.PaginationParams) ([]models.ProviderContract, int64, error) {
	query := s.db.Model(&models.ProviderContract{}).
		Where("clinic_id = ?", clinicID).
		Preload("Provider")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count provider contracts: %w", err)
	}

	allowedSortFields := []string{"created_at", "value"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var contracts []models.ProviderContract
	if err := query.Find(&contracts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch provider contracts: %w", err)
	}

	return contracts, total, nil
}

func (s *RuleService) invalidate(ctx context.Context, clinicID uuid.UUID) {
	if s.ruleCache != nil {
		s.ruleCache.Invalidate(ctx, clinicID)
	}
}
