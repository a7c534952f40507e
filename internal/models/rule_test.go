// internal/models/rule_test.go
package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestCommissionRuleMatchesLine(t *testing.T) {
	itemID := uuid.New()
	otherItemID := uuid.New()
	categoryID := uuid.New()

	line := &SaleLine{
		ServiceOrProductID: itemID,
		CategoryID:         &categoryID,
	}

	itemRule := CommissionRule{Scope: RuleScopeItem, ItemID: &itemID, Active: true}
	assert.True(t, itemRule.MatchesLine(line))

	wrongItem := CommissionRule{Scope: RuleScopeItem, ItemID: &otherItemID, Active: true}
	assert.False(t, wrongItem.MatchesLine(line))

	categoryRule := CommissionRule{Scope: RuleScopeCategory, CategoryID: &categoryID, Active: true}
	assert.True(t, categoryRule.MatchesLine(line))

	uncategorized := &SaleLine{ServiceOrProductID: itemID}
	assert.False(t, categoryRule.MatchesLine(uncategorized))

	globalRule := CommissionRule{Scope: RuleScopeGlobal, Active: true}
	assert.True(t, globalRule.MatchesLine(line))
	assert.True(t, globalRule.MatchesLine(uncategorized))

	inactive := CommissionRule{Scope: RuleScopeGlobal, Active: false}
	assert.False(t, inactive.MatchesLine(line))
}

func TestCommissionRuleRoleAllows(t *testing.T) {
	vetOnly := RoleVeterinarian
	restricted := CommissionRule{Scope: RuleScopeGlobal, Active: true, AppliesToRole: &vetOnly}
	open := CommissionRule{Scope: RuleScopeGlobal, Active: true}

	vet := &Professional{Roles: pq.StringArray{string(RoleVeterinarian), string(RoleClinicAdmin)}}
	groomer := &Professional{Roles: pq.StringArray{string(RoleGroomer)}}

	assert.True(t, restricted.RoleAllows(vet))
	assert.False(t, restricted.RoleAllows(groomer))
	assert.False(t, restricted.RoleAllows(nil))

	assert.True(t, open.RoleAllows(vet))
	assert.True(t, open.RoleAllows(groomer))
	assert.True(t, open.RoleAllows(nil))
}
