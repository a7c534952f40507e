// internal/services/split_service_test.go
package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/models"
)

func newTestSplitService() *SplitService {
	cfg := &config.Config{
		Payment: config.PaymentConfig{
			PlatformFeePercent:    5.0,
			PromotionalFeePercent: 2.5,
			Currency:              "BRL",
		},
	}
	return NewSplitService(nil, cfg, nil)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func vetRole() *models.ProfessionalRole {
	role := models.RoleVeterinarian
	return &role
}

func newVet() *models.Professional {
	return &models.Professional{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Roles:     pq.StringArray{string(models.RoleVeterinarian)},
	}
}

func itemRule(itemID uuid.UUID, kind models.RulePayoutKind, value string, createdAt time.Time) models.CommissionRule {
	return models.CommissionRule{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: createdAt},
		Scope:      models.RuleScopeItem,
		ItemID:     &itemID,
		PayoutKind: kind,
		Value:      money(value),
		Active:     true,
	}
}

func categoryRule(categoryID uuid.UUID, value string, createdAt time.Time) models.CommissionRule {
	return models.CommissionRule{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: createdAt},
		Scope:      models.RuleScopeCategory,
		CategoryID: &categoryID,
		PayoutKind: models.RulePayoutPercentage,
		Value:      money(value),
		Active:     true,
	}
}

func globalRule(value string, createdAt time.Time) models.CommissionRule {
	return models.CommissionRule{
		BaseModel:  models.BaseModel{ID: uuid.New(), CreatedAt: createdAt},
		Scope:      models.RuleScopeGlobal,
		PayoutKind: models.RulePayoutPercentage,
		Value:      money(value),
		Active:     true,
	}
}

func TestResolveRulePrecedence(t *testing.T) {
	s := newTestSplitService()
	itemID := uuid.New()
	categoryID := uuid.New()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	line := &models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: itemID,
		CategoryID:         &categoryID,
		GrossAmount:        money("100.00"),
	}
	vet := newVet()

	item := itemRule(itemID, models.RulePayoutPercentage, "10.00", base)
	category := categoryRule(categoryID, "20.00", base.Add(time.Hour))
	global := globalRule("30.00", base.Add(2*time.Hour))

	// Item beats category beats global regardless of creation order.
	resolved := s.ResolveRule(line, vet, []models.CommissionRule{global, category, item})
	require.NotNil(t, resolved)
	assert.Equal(t, item.ID, resolved.ID)

	resolved = s.ResolveRule(line, vet, []models.CommissionRule{global, category})
	require.NotNil(t, resolved)
	assert.Equal(t, category.ID, resolved.ID)

	resolved = s.ResolveRule(line, vet, []models.CommissionRule{global})
	require.NotNil(t, resolved)
	assert.Equal(t, global.ID, resolved.ID)

	assert.Nil(t, s.ResolveRule(line, vet, nil))
}

func TestResolveRuleRoleFallThrough(t *testing.T) {
	s := newTestSplitService()
	itemID := uuid.New()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	line := &models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: itemID,
		GrossAmount:        money("100.00"),
	}

	restricted := itemRule(itemID, models.RulePayoutPercentage, "15.00", base)
	restricted.AppliesToRole = vetRole()
	global := globalRule("5.00", base)

	groomer := &models.Professional{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Roles:     pq.StringArray{string(models.RoleGroomer)},
	}

	// The groomer fails the item rule's role restriction and falls through
	// to the global tier instead of earning nothing.
	resolved := s.ResolveRule(line, groomer, []models.CommissionRule{restricted, global})
	require.NotNil(t, resolved)
	assert.Equal(t, global.ID, resolved.ID)

	// The vet matches the item tier directly.
	resolved = s.ResolveRule(line, newVet(), []models.CommissionRule{restricted, global})
	require.NotNil(t, resolved)
	assert.Equal(t, restricted.ID, resolved.ID)

	// An unknown performer only passes unrestricted rules.
	resolved = s.ResolveRule(line, nil, []models.CommissionRule{restricted, global})
	require.NotNil(t, resolved)
	assert.Equal(t, global.ID, resolved.ID)
}

func TestResolveRuleInactiveSkipped(t *testing.T) {
	s := newTestSplitService()
	itemID := uuid.New()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	line := &models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: itemID,
		GrossAmount:        money("100.00"),
	}

	inactive := itemRule(itemID, models.RulePayoutPercentage, "10.00", base)
	inactive.Active = false
	global := globalRule("5.00", base)

	resolved := s.ResolveRule(line, newVet(), []models.CommissionRule{inactive, global})
	require.NotNil(t, resolved)
	assert.Equal(t, global.ID, resolved.ID)
}

func TestResolveRuleAmbiguityTieBreak(t *testing.T) {
	s := newTestSplitService()
	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	line := &models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: uuid.New(),
		GrossAmount:        money("100.00"),
	}

	older := globalRule("5.00", base)
	newer := globalRule("8.00", base.Add(time.Minute))

	// Latest created rule wins without aborting.
	resolved := s.ResolveRule(line, newVet(), []models.CommissionRule{older, newer})
	require.NotNil(t, resolved)
	assert.Equal(t, newer.ID, resolved.ID)

	// Same creation instant: lexically greater id wins, deterministically.
	twinA := globalRule("5.00", base)
	twinB := globalRule("8.00", base)
	want := twinA.ID
	if twinB.ID.String() > twinA.ID.String() {
		want = twinB.ID
	}
	resolved = s.ResolveRule(line, newVet(), []models.CommissionRule{twinA, twinB})
	require.NotNil(t, resolved)
	assert.Equal(t, want, resolved.ID)

	resolved = s.ResolveRule(line, newVet(), []models.CommissionRule{twinB, twinA})
	require.NotNil(t, resolved)
	assert.Equal(t, want, resolved.ID)
}

func TestComputeCommission(t *testing.T) {
	s := newTestSplitService()
	itemID := uuid.New()
	base := time.Now()

	tests := []struct {
		name  string
		gross string
		kind  models.RulePayoutKind
		value string
		want  string
	}{
		{"percentage", "200.00", models.RulePayoutPercentage, "10.00", "20.00"},
		{"percentage rounds half to even", "125.00", models.RulePayoutPercentage, "0.50", "0.62"},
		{"fixed below gross", "100.00", models.RulePayoutFixedAmount, "30.00", "30.00"},
		{"fixed capped at line gross", "50.00", models.RulePayoutFixedAmount, "5000.00", "50.00"},
		{"zero gross earns nothing", "0.00", models.RulePayoutPercentage, "10.00", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := &models.SaleLine{
				BaseModel:          models.BaseModel{ID: uuid.New()},
				ServiceOrProductID: itemID,
				GrossAmount:        money(tt.gross),
			}
			rule := itemRule(itemID, tt.kind, tt.value, base)
			got := s.ComputeCommission(line, &rule)
			assert.True(t, money(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestComputePlatformFee(t *testing.T) {
	s := newTestSplitService()
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	promoEnd := now

	zero := decimal.Zero
	override := money("3.00")

	tests := []struct {
		name    string
		profile *models.ClinicBillingProfile
		at      time.Time
		want    string
	}{
		{"default rate without profile", nil, now, "5.00"},
		{"explicit override", &models.ClinicBillingProfile{PlatformFeeRate: &override}, now, "3.00"},
		{"explicit zero override means no fee", &models.ClinicBillingProfile{PlatformFeeRate: &zero}, now, "0.00"},
		{
			"promotional rate at exact window end",
			&models.ClinicBillingProfile{AcceptedHardwareOffer: true, PromotionalRateEndsAt: &promoEnd},
			now,
			"2.50",
		},
		{
			"standard rate the instant after the window",
			&models.ClinicBillingProfile{AcceptedHardwareOffer: true, PromotionalRateEndsAt: &promoEnd},
			now.Add(time.Nanosecond),
			"5.00",
		},
		{
			"promo requires the hardware offer",
			&models.ClinicBillingProfile{AcceptedHardwareOffer: false, PromotionalRateEndsAt: &promoEnd},
			now,
			"5.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ComputePlatformFee(tt.profile, money("100.00"), tt.at)
			assert.True(t, money(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}

	assert.True(t, s.ComputePlatformFee(nil, decimal.Zero, now).IsZero())
}

func newSale(clinicID uuid.UUID, lines ...models.SaleLine) *models.Sale {
	return &models.Sale{
		BaseModel: models.BaseModel{ID: uuid.New()},
		ClinicID:  clinicID,
		Status:    models.SaleStatusOpen,
		Lines:     lines,
	}
}

// Sale of R$150 with no matching rule: no commission, 5% fee, rest to the
// clinic.
func TestBuildPlanNoMatchingRule(t *testing.T) {
	s := newTestSplitService()
	clinicID := uuid.New()
	vet := newVet()

	sale := newSale(clinicID, models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: uuid.New(),
		PerformedByID:      &vet.ID,
		GrossAmount:        money("150.00"),
	})

	plan, err := s.BuildPlan(sale, map[uuid.UUID]*models.Professional{vet.ID: vet}, nil, nil, nil, time.Now())
	require.NoError(t, err)

	assert.Empty(t, plan.Recipients)
	assert.True(t, money("7.50").Equal(plan.PlatformFee))
	assert.True(t, money("142.50").Equal(plan.ClinicNet))
	assert.True(t, plan.Balanced())
}

// R$500 external anesthesia line under a R$300 fixed provider contract: the
// provider takes R$300, the fee is still charged on the full R$500.
func TestBuildPlanProviderContract(t *testing.T) {
	s := newTestSplitService()
	clinicID := uuid.New()
	serviceID := uuid.New()
	providerID := uuid.New()

	contract := models.ProviderContract{
		BaseModel:  models.BaseModel{ID: uuid.New()},
		ClinicID:   clinicID,
		ProviderID: providerID,
		ServiceID:  serviceID,
		PayoutKind: models.ContractPayoutFixedProviderValue,
		Value:      money("300.00"),
		Active:     true,
	}

	sale := newSale(clinicID, models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: serviceID,
		PerformedByID:      &providerID,
		GrossAmount:        money("500.00"),
	})

	plan, err := s.BuildPlan(sale, nil, nil, []models.ProviderContract{contract}, nil, time.Now())
	require.NoError(t, err)

	require.Len(t, plan.Recipients, 1)
	assert.Equal(t, models.RecipientKindProvider, plan.Recipients[0].RecipientKind)
	assert.Equal(t, providerID, plan.Recipients[0].RecipientID)
	assert.True(t, money("300.00").Equal(plan.Recipients[0].Amount))
	assert.True(t, money("25.00").Equal(plan.PlatformFee))
	assert.True(t, money("175.00").Equal(plan.ClinicNet))
	assert.True(t, plan.Balanced())
}

// R$1200 surgery line, 10% item rule for the vet, clinic on the promotional
// rate.
func TestBuildPlanItemRuleWithPromoRate(t *testing.T) {
	s := newTestSplitService()
	clinicID := uuid.New()
	itemID := uuid.New()
	vet := newVet()

	rule := itemRule(itemID, models.RulePayoutPercentage, "10.00", time.Now())

	promoEnd := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	profile := &models.ClinicBillingProfile{
		ClinicID:              clinicID,
		AcceptedHardwareOffer: true,
		PromotionalRateEndsAt: &promoEnd,
	}

	sale := newSale(clinicID, models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: itemID,
		PerformedByID:      &vet.ID,
		GrossAmount:        money("1200.00"),
	})

	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	plan, err := s.BuildPlan(sale, map[uuid.UUID]*models.Professional{vet.ID: vet},
		[]models.CommissionRule{rule}, nil, profile, now)
	require.NoError(t, err)

	require.Len(t, plan.Recipients, 1)
	assert.Equal(t, models.RecipientKindProfessional, plan.Recipients[0].RecipientKind)
	assert.True(t, money("120.00").Equal(plan.Recipients[0].Amount))
	assert.True(t, money("30.00").Equal(plan.PlatformFee))
	assert.True(t, money("1050.00").Equal(plan.ClinicNet))
	assert.True(t, plan.Balanced())
}

// A provider contract on a line wins over any staff rule for the same line.
func TestBuildPlanContractBeatsRule(t *testing.T) {
	s := newTestSplitService()
	clinicID := uuid.New()
	serviceID := uuid.New()
	providerID := uuid.New()

	rule := itemRule(serviceID, models.RulePayoutPercentage, "50.00", time.Now())
	contract := models.ProviderContract{
		BaseModel:  models.BaseModel{ID: uuid.New()},
		ClinicID:   clinicID,
		ProviderID: providerID,
		ServiceID:  serviceID,
		PayoutKind: models.ContractPayoutPercentageClinicMargin,
		Value:      money("40.00"),
		Active:     true,
	}

	sale := newSale(clinicID, models.SaleLine{
		BaseModel:          models.BaseModel{ID: uuid.New()},
		ServiceOrProductID: serviceID,
		PerformedByID:      &providerID,
		GrossAmount:        money("200.00"),
	})

	plan, err := s.BuildPlan(sale, nil, []models.CommissionRule{rule},
		[]models.ProviderContract{contract}, nil, time.Now())
	require.NoError(t, err)

	// 40% margin retained by the clinic, 60% of 200 to the provider.
	require.Len(t, plan.Recipients, 1)
	assert.Equal(t, models.RecipientKindProvider, plan.Recipients[0].RecipientKind)
	assert.True(t, money("120.00").Equal(plan.Recipients[0].Amount))
	assert.True(t, plan.Balanced())
}

func TestBuildPlanMultiLine(t *testing.T) {
	s := newTestSplitService()
	clinicID := uuid.New()
	itemID := uuid.New()
	vet := newVet()
	tech := &models.Professional{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Roles:     pq.StringArray{string(models.RoleTechnician)},
	}

	rule := itemRule(itemID, models.RulePayoutPercentage, "10.00", time.Now())
	global := globalRule("2.00", time.Now())

	sale := newSale(clinicID,
		models.SaleLine{
			BaseModel:          models.BaseModel{ID: uuid.New()},
			ServiceOrProductID: itemID,
			PerformedByID:      &vet.ID,
			GrossAmount:        money("300.00"),
		},
		models.SaleLine{
			BaseModel:          models.BaseModel{ID: uuid.New()},
			ServiceOrProductID: uuid.New(),
			PerformedByID:      &tech.ID,
			GrossAmount:        money("80.00"),
		},
		models.SaleLine{
			// Unattributed retail line: nobody earns on it.
			BaseModel:          models.BaseModel{ID: uuid.New()},
			ServiceOrProductID: uuid.New(),
			GrossAmount:        money("45.90"),
		},
	)

	performers := map[uuid.UUID]*models.Professional{vet.ID: vet, tech.ID: tech}
	plan, err := s.BuildPlan(sale, performers, []models.CommissionRule{rule, global}, nil, nil, time.Now())
	require.NoError(t, err)

	require.Len(t, plan.Recipients, 2)
	assert.True(t, money("425.90").Equal(plan.TotalGross))
	assert.True(t, money("30.00").Equal(plan.Recipients[0].Amount)) // 10% of 300
	assert.True(t, money("1.60").Equal(plan.Recipients[1].Amount))  // 2% of 80
	assert.True(t, plan.Balanced())
}

func TestBuildPlanOverallocation(t *testing.T) {
	s := newTestSplitService()
	clinicID := uuid.New()
	itemID := uuid.New()
	vet := newVet()

	// 98% commission plus the 5% platform fee pushes the clinic net negative.
	rule := itemRule(itemID, models.RulePayoutPercentage, "98.00", time.Now())

	lineID := uuid.New()
	sale := newSale(clinicID, models.SaleLine{
		BaseModel:          models.BaseModel{ID: lineID},
		ServiceOrProductID: itemID,
		PerformedByID:      &vet.ID,
		GrossAmount:        money("100.00"),
	})

	plan, err := s.BuildPlan(sale, map[uuid.UUID]*models.Professional{vet.ID: vet},
		[]models.CommissionRule{rule}, nil, nil, time.Now())
	require.Error(t, err)
	assert.Nil(t, plan)

	var overalloc *SplitOverallocationError
	require.True(t, errors.As(err, &overalloc))
	assert.Equal(t, sale.ID, overalloc.SaleID)
	assert.Equal(t, lineID, overalloc.LineID)
	assert.Equal(t, rule.ID, overalloc.RuleID)
	assert.True(t, money("103.00").Equal(overalloc.Allocated))
}

func TestBuildPlanEmptySale(t *testing.T) {
	s := newTestSplitService()
	plan, err := s.BuildPlan(newSale(uuid.New()), nil, nil, nil, nil, time.Now())
	require.NoError(t, err)

	assert.True(t, plan.TotalGross.IsZero())
	assert.True(t, plan.PlatformFee.IsZero())
	assert.True(t, plan.ClinicNet.IsZero())
	assert.Empty(t, plan.Recipients)
	assert.True(t, plan.Balanced())
}
