package dto

import (
	"marketwatch/internal/domain"
)

// UserOutput represents user details in API responses
type UserOutput struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Role              string `json:"role"`
	PreferredCurrency string `json:"preferred_currency,omitempty"`
	PreferredTimezone string `json:"preferred_timezone,omitempty"`
}

// PreferencesRequest updates display preferences; empty fields are kept
type PreferencesRequest struct {
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

// NewUserOutput builds the user view, with preferences when account is set
func NewUserOutput(user *domain.User, account *domain.Account) *UserOutput {
	out := &UserOutput{
		ID:       user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
	}
	if account != nil {
		out.PreferredCurrency = account.PreferredCurrencyCode
		out.PreferredTimezone = account.PreferredTimezone
	}
	return out
}
