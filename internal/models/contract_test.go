// internal/models/contract_test.go
package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProviderShare(t *testing.T) {
	fixed := ProviderContract{PayoutKind: ContractPayoutFixedProviderValue, Value: amount("300.00")}
	assert.True(t, amount("300.00").Equal(fixed.ProviderShare(amount("500.00"))))
	// Capped at the line gross.
	assert.True(t, amount("80.00").Equal(fixed.ProviderShare(amount("80.00"))))
	assert.True(t, fixed.ProviderShare(decimal.Zero).IsZero())
	assert.True(t, fixed.ProviderShare(amount("-10.00")).IsZero())

	// Clinic retains 40%, provider takes 60%.
	margin := ProviderContract{PayoutKind: ContractPayoutPercentageClinicMargin, Value: amount("40.00")}
	assert.True(t, amount("120.00").Equal(margin.ProviderShare(amount("200.00"))))

	// Rounds half to even at centavos: 60% of 33.33 = 19.998 -> 20.00.
	assert.True(t, amount("20.00").Equal(margin.ProviderShare(amount("33.33"))))
}

func TestPromotionActive(t *testing.T) {
	end := time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC)

	profile := ClinicBillingProfile{AcceptedHardwareOffer: true, PromotionalRateEndsAt: &end}
	assert.True(t, profile.PromotionActive(end.Add(-time.Hour)))
	// Window end is inclusive.
	assert.True(t, profile.PromotionActive(end))
	assert.False(t, profile.PromotionActive(end.Add(time.Nanosecond)))

	noOffer := ClinicBillingProfile{AcceptedHardwareOffer: false, PromotionalRateEndsAt: &end}
	assert.False(t, noOffer.PromotionActive(end.Add(-time.Hour)))

	openEnded := ClinicBillingProfile{AcceptedHardwareOffer: true}
	assert.False(t, openEnded.PromotionActive(time.Now()))
}
