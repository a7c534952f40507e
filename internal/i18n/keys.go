// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAdminAccessDenied = "auth.admin_access_denied"

	// Commission rules
	KeyRuleCreated       = "rule.created"
	KeyRuleUpdated       = "rule.updated"
	KeyRuleDeleted       = "rule.deleted"
	KeyRuleNotFound      = "rule.not_found"
	KeyRuleInvalidConfig = "rule.invalid_config"

	// Provider contracts
	KeyContractCreated     = "contract.created"
	KeyContractDeactivated = "contract.deactivated"
	KeyContractNotFound    = "contract.not_found"
	KeyContractDuplicate   = "contract.duplicate"

	// Sales & splits
	KeySaleCreated          = "sale.created"
	KeySaleNotFound         = "sale.not_found"
	KeySaleFinalized        = "sale.finalized"
	KeySaleAlreadyFinalized = "sale.already_finalized"
	KeySplitOverallocated   = "split.overallocated"

	// Ledger & closing
	KeyClosingCompleted   = "closing.completed"
	KeyClosingEmpty       = "closing.empty"
	KeyLedgerInconsistent = "ledger.inconsistent"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
)
