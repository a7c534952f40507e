// internal/services/ledger_integration_test.go
package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/vetlink/vetlink-backend/internal/config"
	"github.com/vetlink/vetlink-backend/internal/database"
	"github.com/vetlink/vetlink-backend/internal/models"
)

// LedgerIntegrationSuite exercises the persistence-dependent guarantees
// against a real Postgres. Set TEST_DATABASE_URL to run it.
type LedgerIntegrationSuite struct {
	suite.Suite
	db     *gorm.DB
	ledger *LedgerService
	split  *SplitService

	clinicID uuid.UUID
	vet      *models.Professional
}

func TestLedgerIntegrationSuite(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	suite.Run(t, new(LedgerIntegrationSuite))
}

func (s *LedgerIntegrationSuite) SetupSuite() {
	db, err := gorm.Open(postgres.Open(os.Getenv("TEST_DATABASE_URL")), &gorm.Config{})
	s.Require().NoError(err)
	s.Require().NoError(database.RunMigrations(db))
	s.db = db

	cfg := &config.Config{
		Payment: config.PaymentConfig{
			PlatformFeePercent:    5.0,
			PromotionalFeePercent: 2.5,
			Currency:              "BRL",
		},
	}
	s.ledger = NewLedgerService(db, cfg, nil, nil)
	s.split = NewSplitService(db, cfg, nil)
}

func (s *LedgerIntegrationSuite) SetupTest() {
	s.clinicID = uuid.New()
	s.vet = &models.Professional{
		ClinicID: s.clinicID,
		Username: "vet_" + uuid.NewString()[:8],
		Email:    uuid.NewString() + "@vetlink.test",
		FullName: "Dra. Ana Souza",
		Roles:    pq.StringArray{string(models.RoleVeterinarian)},
		Status:   models.ProfessionalStatusActive,
	}
	s.Require().NoError(s.db.Create(s.vet).Error)
}

func (s *LedgerIntegrationSuite) createRecordedSale(gross string) (*models.Sale, *SplitPlan) {
	sale := &models.Sale{ClinicID: s.clinicID, Status: models.SaleStatusOpen}
	s.Require().NoError(s.db.Create(sale).Error)

	line := &models.SaleLine{
		SaleID:             sale.ID,
		ServiceOrProductID: uuid.New(),
		PerformedByID:      &s.vet.ID,
		GrossAmount:        money(gross),
	}
	s.Require().NoError(s.db.Create(line).Error)
	sale.Lines = []models.SaleLine{*line}

	rule := &models.CommissionRule{
		ClinicID:   s.clinicID,
		Scope:      models.RuleScopeGlobal,
		PayoutKind: models.RulePayoutPercentage,
		Value:      money("10.00"),
		Active:     true,
	}
	s.Require().NoError(s.db.Create(rule).Error)

	plan, err := s.split.BuildPlan(sale,
		map[uuid.UUID]*models.Professional{s.vet.ID: s.vet},
		[]models.CommissionRule{*rule}, nil, nil, time.Now())
	s.Require().NoError(err)
	return sale, plan
}

// Recording the same finalized sale twice leaves exactly one set of entries.
func (s *LedgerIntegrationSuite) TestRecordIsIdempotent() {
	sale, plan := s.createRecordedSale("200.00")

	first, err := s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	second, err := s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.Equal(first[0].ID, second[0].ID)

	var count int64
	s.Require().NoError(s.db.Model(&models.CommissionLedgerEntry{}).
		Where("sale_line_id = ?", sale.Lines[0].ID).Count(&count).Error)
	s.EqualValues(1, count)
}

// A plan settling entirely to an external provider creates no ledger
// entries, so re-recording must be caught on the disbursement side.
func (s *LedgerIntegrationSuite) TestRecordIsIdempotentForProviderOnlyPlan() {
	serviceID := uuid.New()
	contract := &models.ProviderContract{
		ClinicID:   s.clinicID,
		ProviderID: s.vet.ID,
		ServiceID:  serviceID,
		PayoutKind: models.ContractPayoutFixedProviderValue,
		Value:      money("80.00"),
		Active:     true,
	}
	s.Require().NoError(s.db.Create(contract).Error)

	sale := &models.Sale{ClinicID: s.clinicID, Status: models.SaleStatusOpen}
	s.Require().NoError(s.db.Create(sale).Error)
	line := &models.SaleLine{
		SaleID:             sale.ID,
		ServiceOrProductID: serviceID,
		GrossAmount:        money("300.00"),
	}
	s.Require().NoError(s.db.Create(line).Error)
	sale.Lines = []models.SaleLine{*line}

	plan, err := s.split.BuildPlan(sale, nil, nil,
		[]models.ProviderContract{*contract}, nil, time.Now())
	s.Require().NoError(err)

	entries, err := s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)
	s.Empty(entries)

	entries, err = s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)
	s.Empty(entries)

	var count int64
	s.Require().NoError(s.db.Model(&models.ProviderDisbursement{}).
		Where("sale_line_id = ?", line.ID).Count(&count).Error)
	s.EqualValues(1, count)
}

func (s *LedgerIntegrationSuite) TestClosePeriodPaysAllSelectedEntries() {
	sale, plan := s.createRecordedSale("300.00")
	_, err := s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)

	batch, err := s.ledger.ClosePeriod(s.clinicID, uuid.New(), &ClosePeriodRequest{
		ProfessionalID: s.vet.ID,
		PeriodEnd:      time.Now().Add(time.Hour),
		PayoutMethod:   models.PayoutMethodPix,
	})
	s.Require().NoError(err)
	s.Equal(1, batch.EntryCount)
	s.True(money("30.00").Equal(batch.TotalAmount))

	// The returned batch must reflect the paid state, not the pre-update
	// snapshots.
	s.Require().Len(batch.Entries, 1)
	s.Equal(models.LedgerStatusPaid, batch.Entries[0].Status)
	s.NotNil(batch.Entries[0].PaidAt)
	s.Require().NotNil(batch.Entries[0].ClosingBatchID)
	s.Equal(batch.ID, *batch.Entries[0].ClosingBatchID)

	var entries []models.CommissionLedgerEntry
	s.Require().NoError(s.db.Where("professional_id = ?", s.vet.ID).Find(&entries).Error)
	for _, entry := range entries {
		s.Equal(models.LedgerStatusPaid, entry.Status)
		s.NotNil(entry.PaidAt)
		s.Require().NotNil(entry.ClosingBatchID)
		s.Equal(batch.ID, *entry.ClosingBatchID)
	}
}

// A failure after the entries have been selected and flipped must roll the
// whole close back: every entry stays pending and no batch row survives.
func (s *LedgerIntegrationSuite) TestClosePeriodRollsBackOnLateFailure() {
	sale, plan := s.createRecordedSale("300.00")
	_, err := s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)

	s.Require().NoError(s.db.Callback().Create().Before("gorm:create").
		Register("vetlink:fail_audit_insert", func(tx *gorm.DB) {
			if tx.Statement.Table == "audit_logs" {
				tx.AddError(errors.New("simulated insert failure"))
			}
		}))
	defer s.db.Callback().Create().Remove("vetlink:fail_audit_insert")

	_, err = s.ledger.ClosePeriod(s.clinicID, uuid.New(), &ClosePeriodRequest{
		ProfessionalID: s.vet.ID,
		PeriodEnd:      time.Now().Add(time.Hour),
		PayoutMethod:   models.PayoutMethodPix,
	})
	s.Require().Error(err)

	var entry models.CommissionLedgerEntry
	s.Require().NoError(s.db.Where("professional_id = ?", s.vet.ID).First(&entry).Error)
	s.Equal(models.LedgerStatusPending, entry.Status)
	s.Nil(entry.PaidAt)
	s.Nil(entry.ClosingBatchID)

	var batches int64
	s.Require().NoError(s.db.Model(&models.ClosingBatch{}).
		Where("professional_id = ?", s.vet.ID).Count(&batches).Error)
	s.Zero(batches)
}

func (s *LedgerIntegrationSuite) TestClosePeriodEmptyWindow() {
	_, err := s.ledger.ClosePeriod(s.clinicID, uuid.New(), &ClosePeriodRequest{
		ProfessionalID: s.vet.ID,
		PeriodEnd:      time.Now(),
		PayoutMethod:   models.PayoutMethodPix,
	})
	s.Require().ErrorIs(err, ErrEmptyClosingPeriod)
}

// Entries created after the period end stay pending.
func (s *LedgerIntegrationSuite) TestClosePeriodRespectsWindowBoundary() {
	sale, plan := s.createRecordedSale("100.00")
	_, err := s.ledger.Record(s.db, sale, plan)
	s.Require().NoError(err)

	_, err = s.ledger.ClosePeriod(s.clinicID, uuid.New(), &ClosePeriodRequest{
		ProfessionalID: s.vet.ID,
		PeriodEnd:      time.Now().Add(-time.Hour),
		PayoutMethod:   models.PayoutMethodBankTransfer,
	})
	s.Require().ErrorIs(err, ErrEmptyClosingPeriod)

	var entry models.CommissionLedgerEntry
	s.Require().NoError(s.db.Where("professional_id = ?", s.vet.ID).First(&entry).Error)
	s.Equal(models.LedgerStatusPending, entry.Status)
}

// The recorded plan covers every line present once the sale row lock is
// held, including lines added after the sale was first created.
func (s *LedgerIntegrationSuite) TestFinalizeSettlesLinesPresentAtLockTime() {
	rule := &models.CommissionRule{
		ClinicID:   s.clinicID,
		Scope:      models.RuleScopeGlobal,
		PayoutKind: models.RulePayoutPercentage,
		Value:      money("10.00"),
		Active:     true,
	}
	s.Require().NoError(s.db.Create(rule).Error)

	sale := &models.Sale{ClinicID: s.clinicID, Status: models.SaleStatusOpen}
	s.Require().NoError(s.db.Create(sale).Error)
	first := &models.SaleLine{
		SaleID:             sale.ID,
		ServiceOrProductID: uuid.New(),
		PerformedByID:      &s.vet.ID,
		GrossAmount:        money("100.00"),
	}
	s.Require().NoError(s.db.Create(first).Error)

	// A line slipping in right before finalization must still be settled.
	late := &models.SaleLine{
		SaleID:             sale.ID,
		ServiceOrProductID: uuid.New(),
		PerformedByID:      &s.vet.ID,
		GrossAmount:        money("50.00"),
	}
	s.Require().NoError(s.db.Create(late).Error)

	saleService := NewSaleService(s.db, s.split, s.ledger)
	result, err := saleService.FinalizeSale(context.Background(), s.clinicID, sale.ID)
	s.Require().NoError(err)
	s.True(money("150.00").Equal(result.Plan.TotalGross))
	s.Len(result.Entries, 2)
}
