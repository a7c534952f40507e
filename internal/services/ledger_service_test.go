// internal/services/ledger_service_test.go
package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlink/vetlink-backend/internal/models"
	"github.com/vetlink/vetlink-backend/internal/utils"
)

func TestBuildEntriesSplitsByKind(t *testing.T) {
	clinicID := uuid.New()
	sale := &models.Sale{
		BaseModel: models.BaseModel{ID: uuid.New()},
		ClinicID:  clinicID,
	}

	vetID := uuid.New()
	providerID := uuid.New()
	lineA := uuid.New()
	lineB := uuid.New()
	ruleID := uuid.New()
	contractID := uuid.New()

	plan := &SplitPlan{
		SaleID:   sale.ID,
		ClinicID: clinicID,
		Currency: "BRL",
		Recipients: []PlanRecipient{
			{RecipientID: vetID, RecipientKind: models.RecipientKindProfessional, SaleLineID: lineA, Amount: money("30.00"), Currency: "BRL", ReasonRuleID: ruleID},
			{RecipientID: providerID, RecipientKind: models.RecipientKindProvider, SaleLineID: lineB, Amount: money("120.00"), Currency: "BRL", ReasonRuleID: contractID},
			// Zero amounts never become rows.
			{RecipientID: uuid.New(), RecipientKind: models.RecipientKindProfessional, SaleLineID: uuid.New(), Amount: money("0.00"), Currency: "BRL", ReasonRuleID: uuid.New()},
		},
	}

	entries, disbursements := BuildEntries(sale, plan)

	require.Len(t, entries, 1)
	assert.Equal(t, clinicID, entries[0].ClinicID)
	assert.Equal(t, vetID, entries[0].ProfessionalID)
	assert.Equal(t, lineA, entries[0].SaleLineID)
	assert.Equal(t, ruleID, entries[0].RuleID)
	assert.Equal(t, models.LedgerStatusPending, entries[0].Status)
	assert.True(t, money("30.00").Equal(entries[0].Amount))

	require.Len(t, disbursements, 1)
	assert.Equal(t, providerID, disbursements[0].ProviderID)
	assert.Equal(t, lineB, disbursements[0].SaleLineID)
	assert.Equal(t, contractID, disbursements[0].ContractID)
	assert.Equal(t, models.DisbursementStatusPending, disbursements[0].Status)
	assert.True(t, money("120.00").Equal(disbursements[0].Amount))
}

func TestRecordRejectsUnbalancedPlan(t *testing.T) {
	s := NewLedgerService(nil, nil, nil, nil)
	sale := &models.Sale{BaseModel: models.BaseModel{ID: uuid.New()}}

	// Fee + recipients + net does not reproduce the gross: internal bug,
	// nothing may be persisted.
	plan := &SplitPlan{
		SaleID:      sale.ID,
		TotalGross:  money("100.00"),
		PlatformFee: money("5.00"),
		ClinicNet:   money("90.00"),
		Recipients: []PlanRecipient{
			{RecipientID: uuid.New(), RecipientKind: models.RecipientKindProfessional, SaleLineID: uuid.New(), Amount: money("10.00")},
		},
	}

	entries, err := s.Record(nil, sale, plan)
	require.Error(t, err)
	assert.Nil(t, entries)

	var inconsistent *LedgerConsistencyError
	require.True(t, errors.As(err, &inconsistent))
	assert.Equal(t, sale.ID, inconsistent.SaleID)
	assert.Contains(t, inconsistent.Detail, "100.00")
}

func TestClosePeriodRequestValidation(t *testing.T) {
	valid := &ClosePeriodRequest{
		ProfessionalID: uuid.New(),
		PeriodEnd:      time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC),
		PayoutMethod:   models.PayoutMethodPix,
	}
	assert.Empty(t, utils.GetValidationErrors(utils.ValidateStruct(valid)))

	missing := &ClosePeriodRequest{PayoutMethod: models.PayoutMethodPix}
	assert.NotEmpty(t, utils.GetValidationErrors(utils.ValidateStruct(missing)))

	badMethod := &ClosePeriodRequest{
		ProfessionalID: uuid.New(),
		PeriodEnd:      time.Now(),
		PayoutMethod:   models.PayoutMethod("cheque"),
	}
	assert.NotEmpty(t, utils.GetValidationErrors(utils.ValidateStruct(badMethod)))
}
