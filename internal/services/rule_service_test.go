// internal/services/rule_service_test.go
package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetlink/vetlink-backend/internal/models"
)

func TestValidateRuleConfig(t *testing.T) {
	itemID := uuid.New()
	categoryID := uuid.New()

	tests := []struct {
		name       string
		scope      models.RuleScope
		itemID     *uuid.UUID
		categoryID *uuid.UUID
		payoutKind models.RulePayoutKind
		value      string
		wantField  string
	}{
		{"valid item rule", models.RuleScopeItem, &itemID, nil, models.RulePayoutPercentage, "10.00", ""},
		{"valid category rule", models.RuleScopeCategory, nil, &categoryID, models.RulePayoutFixedAmount, "25.00", ""},
		{"valid global rule", models.RuleScopeGlobal, nil, nil, models.RulePayoutPercentage, "2.00", ""},
		{"item rule without item", models.RuleScopeItem, nil, nil, models.RulePayoutPercentage, "10.00", "item_id"},
		{"item rule with stray category", models.RuleScopeItem, &itemID, &categoryID, models.RulePayoutPercentage, "10.00", "category_id"},
		{"category rule without category", models.RuleScopeCategory, nil, nil, models.RulePayoutPercentage, "10.00", "category_id"},
		{"category rule with stray item", models.RuleScopeCategory, &itemID, &categoryID, models.RulePayoutPercentage, "10.00", "item_id"},
		{"global rule with binding", models.RuleScopeGlobal, &itemID, nil, models.RulePayoutPercentage, "10.00", "scope"},
		{"unknown scope", models.RuleScope("regional"), nil, nil, models.RulePayoutPercentage, "10.00", "scope"},
		{"negative value", models.RuleScopeGlobal, nil, nil, models.RulePayoutFixedAmount, "-1.00", "value"},
		{"percentage above 100", models.RuleScopeGlobal, nil, nil, models.RulePayoutPercentage, "101.00", "value"},
		{"fixed amount above 100 is fine", models.RuleScopeGlobal, nil, nil, models.RulePayoutFixedAmount, "500.00", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRuleConfig(tt.scope, tt.itemID, tt.categoryID, tt.payoutKind, money(tt.value))
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidRuleConfigurationError
			require.True(t, errors.As(err, &invalid), "expected InvalidRuleConfigurationError, got %v", err)
			assert.Equal(t, tt.wantField, invalid.Field)
		})
	}
}
