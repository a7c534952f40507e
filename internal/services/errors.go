// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrSaleNotFound         = errors.New("sale not found")
	ErrSaleAlreadyFinalized = errors.New("sale is already finalized")
	ErrSaleCanceled         = errors.New("sale is canceled")
	ErrDuplicateContract    = errors.New("an active contract already exists for this provider and service")
	ErrEmptyClosingPeriod   = errors.New("no pending commissions in the selected period")
)

// SplitOverallocationError is fatal: commissions plus platform fee exceed the
// sale total. Finalization must abort until rules are corrected.
type SplitOverallocationError struct {
	SaleID     uuid.UUID
	LineID     uuid.UUID
	RuleID     uuid.UUID
	TotalGross decimal.Decimal
	Allocated  decimal.Decimal
}

func (e *SplitOverallocationError) Error() string {
	return fmt.Sprintf(
		"split overallocation on sale %s: allocated %s exceeds gross %s (line %s, rule %s)",
		e.SaleID, e.Allocated.StringFixed(2), e.TotalGross.StringFixed(2), e.LineID, e.RuleID,
	)
}

// InvalidRuleConfigurationError is raised at rule/contract create or edit
// time, before bad data can reach the calculator.
type InvalidRuleConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidRuleConfigurationError) Error() string {
	return fmt.Sprintf("invalid rule configuration: %s %s", e.Field, e.Reason)
}

// LedgerConsistencyError signals an internal bug: a plan handed to the ledger
// does not balance to its own total. Nothing is recorded.
type LedgerConsistencyError struct {
	SaleID uuid.UUID
	Detail string
}

func (e *LedgerConsistencyError) Error() string {
	return fmt.Sprintf("ledger consistency violation on sale %s: %s", e.SaleID, e.Detail)
}
