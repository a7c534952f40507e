// internal/services/split_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vetlink/vetlink-backend/internal/cache"
	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// SplitService is the commission and split-payment engine. All amounts are
// decimal BRL rounded half-to-even at two places. Rule sets, contracts and
// the clinic billing profile are passed explicitly into each computation so
// the engine stays deterministic under test.
type SplitService struct {
	db        *gorm.DB
	config    *config.Config
	ruleCache *cache.RuleCache
}

func NewSplitService(db *gorm.DB, config *config.Config, ruleCache *cache.RuleCache) *SplitService {
	return &SplitService{
		db:        db,
		config:    config,
		ruleCache: ruleCache,
	}
}

// PlanRecipient is one (recipient, amount) pair of a settlement plan.
type PlanRecipient struct {
	RecipientID   uuid.UUID            `json:"recipient_id"`
	RecipientKind models.RecipientKind `json:"recipient_kind"`
	SaleLineID    uuid.UUID            `json:"sale_line_id"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	ReasonRuleID  uuid.UUID            `json:"reason_rule_id"`
}

// SplitPlan is the computed settlement of one finalized sale. It is derived
// per settlement, never persisted verbatim; recording it produces ledger
// entries and provider disbursements.
type SplitPlan struct {
	SaleID      uuid.UUID       `json:"sale_id"`
	ClinicID    uuid.UUID       `json:"clinic_id"`
	Currency    string          `json:"currency"`
	TotalGross  decimal.Decimal `json:"total_gross"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Recipients  []PlanRecipient `json:"recipients"`
	ClinicNet   decimal.Decimal `json:"clinic_net"`
}

func (p *SplitPlan) RecipientTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range p.Recipients {
		total = total.Add(r.Amount)
	}
	return total
}

// Balanced reports whether platformFee + recipients + clinicNet reproduces
// the gross total exactly.
func (p *SplitPlan) Balanced() bool {
	return p.PlatformFee.Add(p.RecipientTotal()).Add(p.ClinicNet).Equal(p.TotalGross)
}

// ResolveRule selects the single applicable commission rule for a line.
// Precedence: item rule, then category rule, then the clinic-wide global
// rule. A rule whose role restriction the performer does not satisfy is
// skipped and resolution falls through to the next tier. Returns nil when no
// tier matches, meaning the line earns no commission.
func (s *SplitService) ResolveRule(line *models.SaleLine, performer *models.Professional, rules []models.CommissionRule) *models.CommissionRule {
	for _, scope := range []models.RuleScope{models.RuleScopeItem, models.RuleScopeCategory, models.RuleScopeGlobal} {
		var candidates []models.CommissionRule
		for _, rule := range rules {
			if rule.Scope != scope || !rule.MatchesLine(line) {
				continue
			}
			if !rule.RoleAllows(performer) {
				continue
			}
			candidates = append(candidates, rule)
		}

		if len(candidates) == 0 {
			continue
		}
		if len(candidates) > 1 {
			s.warnAmbiguousRules(line, scope, candidates)
		}
		return pickMostRecentRule(candidates)
	}
	return nil
}

// pickMostRecentRule deterministically breaks same-tier ties: latest
// created_at wins, then the lexically greater id (bulk imports can share a
// timestamp).
func pickMostRecentRule(candidates []models.CommissionRule) *models.CommissionRule {
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID.String() > candidates[j].ID.String()
	})
	return &candidates[0]
}

func (s *SplitService) warnAmbiguousRules(line *models.SaleLine, scope models.RuleScope, candidates []models.CommissionRule) {
	ruleIDs := make([]string, len(candidates))
	for i, r := range candidates {
		ruleIDs[i] = r.ID.String()
	}

	logrus.WithFields(logrus.Fields{
		"sale_line_id": line.ID,
		"scope":        scope,
		"rule_ids":     ruleIDs,
	}).Warn("multiple commission rules matched the same tier; using the most recently created")

	if s.db == nil {
		return
	}
	lineID := line.ID
	audit := &models.AuditLog{
		Action:       models.AuditActionRuleAmbiguity,
		ResourceType: "sale_line",
		ResourceID:   &lineID,
		NewValues: models.JSONB{
			"scope":    string(scope),
			"rule_ids": ruleIDs,
		},
	}
	if err := s.db.Create(audit).Error; err != nil {
		logrus.WithError(err).Warn("failed to record rule ambiguity audit entry")
	}
}

// ComputeCommission turns a resolved rule and a line into a concrete amount.
// Fixed commissions are capped at the line's own gross so a misconfigured
// rule can never push the clinic margin negative on a cheap line.
func (s *SplitService) ComputeCommission(line *models.SaleLine, rule *models.CommissionRule) decimal.Decimal {
	if line.GrossAmount.Sign() <= 0 {
		return decimal.Zero
	}

	switch rule.PayoutKind {
	case models.RulePayoutFixedAmount:
		if rule.Value.GreaterThan(line.GrossAmount) {
			return line.GrossAmount
		}
		return rule.Value
	case models.RulePayoutPercentage:
		return line.GrossAmount.Mul(rule.Value).Div(oneHundred).RoundBank(2)
	}
	return decimal.Zero
}

// ComputePlatformFee computes the platform's cut of a transaction total.
// Promotional rate applies while the hardware-offer window is open (end date
// inclusive); an explicit per-clinic override of zero means no fee.
func (s *SplitService) ComputePlatformFee(profile *models.ClinicBillingProfile, totalGross decimal.Decimal, now time.Time) decimal.Decimal {
	if totalGross.Sign() <= 0 {
		return decimal.Zero
	}

	var rate decimal.Decimal
	switch {
	case profile != nil && profile.PromotionActive(now):
		rate = decimal.NewFromFloat(s.config.Payment.PromotionalFeePercent)
	case profile != nil && profile.PlatformFeeRate != nil:
		rate = *profile.PlatformFeeRate
	default:
		rate = decimal.NewFromFloat(s.config.Payment.PlatformFeePercent)
	}

	return totalGross.Mul(rate).Div(oneHundred).RoundBank(2)
}

// BuildPlan aggregates the platform fee and every line-level commission or
// provider payout into one settlement plan. A provider contract on a line
// takes precedence over any staff commission rule for the same line. The fee
// is charged once on the transaction total, not per line.
func (s *SplitService) BuildPlan(
	sale *models.Sale,
	performers map[uuid.UUID]*models.Professional,
	rules []models.CommissionRule,
	contracts []models.ProviderContract,
	profile *models.ClinicBillingProfile,
	now time.Time,
) (*SplitPlan, error) {
	currency := s.config.Payment.Currency
	if profile != nil && profile.Currency != "" {
		currency = profile.Currency
	}

	plan := &SplitPlan{
		SaleID:   sale.ID,
		ClinicID: sale.ClinicID,
		Currency: currency,
	}

	totalGross := decimal.Zero
	for i := range sale.Lines {
		line := &sale.Lines[i]
		totalGross = totalGross.Add(line.GrossAmount)

		var performer *models.Professional
		if line.PerformedByID != nil {
			performer = performers[*line.PerformedByID]
		}

		if contract := s.resolveContract(line, contracts); contract != nil {
			share := contract.ProviderShare(line.GrossAmount)
			if share.Sign() > 0 {
				plan.Recipients = append(plan.Recipients, PlanRecipient{
					RecipientID:   contract.ProviderID,
					RecipientKind: models.RecipientKindProvider,
					SaleLineID:    line.ID,
					Amount:        share,
					Currency:      currency,
					ReasonRuleID:  contract.ID,
				})
			}
			continue
		}

		rule := s.ResolveRule(line, performer, rules)
		if rule == nil || line.PerformedByID == nil {
			continue
		}
		amount := s.ComputeCommission(line, rule)
		if amount.Sign() <= 0 {
			continue
		}
		plan.Recipients = append(plan.Recipients, PlanRecipient{
			RecipientID:   *line.PerformedByID,
			RecipientKind: models.RecipientKindProfessional,
			SaleLineID:    line.ID,
			Amount:        amount,
			Currency:      currency,
			ReasonRuleID:  rule.ID,
		})
	}

	plan.TotalGross = totalGross
	plan.PlatformFee = s.ComputePlatformFee(profile, totalGross, now)
	plan.ClinicNet = totalGross.Sub(plan.PlatformFee).Sub(plan.RecipientTotal())

	if plan.ClinicNet.Sign() < 0 {
		lineID, ruleID := plan.largestRecipient()
		return nil, &SplitOverallocationError{
			SaleID:     sale.ID,
			LineID:     lineID,
			RuleID:     ruleID,
			TotalGross: totalGross,
			Allocated:  plan.PlatformFee.Add(plan.RecipientTotal()),
		}
	}

	return plan, nil
}

// resolveContract finds the active provider contract covering a line's
// service. When contracts from several providers cover the same service the
// one held by the performing professional wins; otherwise the most recent
// contract is used and the ambiguity is logged.
func (s *SplitService) resolveContract(line *models.SaleLine, contracts []models.ProviderContract) *models.ProviderContract {
	var candidates []*models.ProviderContract
	for i := range contracts {
		c := &contracts[i]
		if !c.Active || c.ServiceID != line.ServiceOrProductID {
			continue
		}
		if line.PerformedByID != nil && c.ProviderID == *line.PerformedByID {
			return c
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 1 {
		logrus.WithFields(logrus.Fields{
			"sale_line_id": line.ID,
			"service_id":   line.ServiceOrProductID,
		}).Warn("multiple provider contracts cover this service; using the most recently created")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	return best
}

// largestRecipient attributes an overallocation to the line carrying the
// biggest single payout, which is where a misconfigured rule shows up.
func (p *SplitPlan) largestRecipient() (lineID, ruleID uuid.UUID) {
	max := decimal.Zero
	for _, r := range p.Recipients {
		if r.Amount.GreaterThan(max) {
			max = r.Amount
			lineID = r.SaleLineID
			ruleID = r.ReasonRuleID
		}
	}
	return lineID, ruleID
}

// BuildPlanForSale loads a sale and its clinic inputs and builds the plan
// against the current clock. Used by the dry-run preview endpoint.
func (s *SplitService) BuildPlanForSale(ctx context.Context, saleID uuid.UUID) (*SplitPlan, error) {
	return s.buildPlanForSale(ctx, s.db, saleID)
}

// BuildPlanForSaleTx is BuildPlanForSale reading through the caller's
// transaction. Finalization uses it after locking the sale row so the plan
// covers exactly the lines that get finalized.
func (s *SplitService) BuildPlanForSaleTx(ctx context.Context, tx *gorm.DB, saleID uuid.UUID) (*SplitPlan, error) {
	return s.buildPlanForSale(ctx, tx, saleID)
}

func (s *SplitService) buildPlanForSale(ctx context.Context, db *gorm.DB, saleID uuid.UUID) (*SplitPlan, error) {
	var sale models.Sale
	if err := db.Preload("Lines").First(&sale, saleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	performers, err := s.loadPerformers(db, &sale)
	if err != nil {
		return nil, err
	}

	rules, err := s.loadRules(ctx, db, sale.ClinicID)
	if err != nil {
		return nil, err
	}

	contracts, err := s.loadContracts(ctx, db, sale.ClinicID)
	if err != nil {
		return nil, err
	}

	var profile models.ClinicBillingProfile
	if err := db.Where("clinic_id = ?", sale.ClinicID).First(&profile).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load billing profile: %w", err)
		}
		// No profile yet: platform defaults apply.
		return s.BuildPlan(&sale, performers, rules, contracts, nil, time.Now())
	}

	return s.BuildPlan(&sale, performers, rules, contracts, &profile, time.Now())
}

func (s *SplitService) loadPerformers(db *gorm.DB, sale *models.Sale) (map[uuid.UUID]*models.Professional, error) {
	ids := make([]uuid.UUID, 0, len(sale.Lines))
	seen := make(map[uuid.UUID]bool)
	for _, line := range sale.Lines {
		if line.PerformedByID != nil && !seen[*line.PerformedByID] {
			seen[*line.PerformedByID] = true
			ids = append(ids, *line.PerformedByID)
		}
	}

	performers := make(map[uuid.UUID]*models.Professional, len(ids))
	if len(ids) == 0 {
		return performers, nil
	}

	var professionals []models.Professional
	if err := db.Where("id IN ?", ids).Find(&professionals).Error; err != nil {
		return nil, fmt.Errorf("failed to load performing professionals: %w", err)
	}
	for i := range professionals {
		performers[professionals[i].ID] = &professionals[i]
	}
	return performers, nil
}

func (s *SplitService) loadRules(ctx context.Context, db *gorm.DB, clinicID uuid.UUID) ([]models.CommissionRule, error) {
	if s.ruleCache != nil {
		if rules, ok := s.ruleCache.GetRules(ctx, clinicID); ok {
			return rules, nil
		}
	}

	var rules []models.CommissionRule
	if err := db.Where("clinic_id = ? AND active = ?", clinicID, true).Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to load commission rules: %w", err)
	}

	if s.ruleCache != nil {
		s.ruleCache.SetRules(ctx, clinicID, rules)
	}
	return rules, nil
}

func (s *SplitService) loadContracts(ctx context.Context, db *gorm.DB, clinicID uuid.UUID) ([]models.ProviderContract, error) {
	if s.ruleCache != nil {
		if contracts, ok := s.ruleCache.GetContracts(ctx, clinicID); ok {
			return contracts, nil
		}
	}

	var contracts []models.ProviderContract
	if err := db.Where("clinic_id = ? AND active = ?", clinicID, true).Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("failed to load provider contracts: %w", err)
	}

	if s.ruleCache != nil {
		s.ruleCache.SetContracts(ctx, clinicID, contracts)
	}
	return contracts, nil
}
