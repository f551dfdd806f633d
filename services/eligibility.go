package services

import (
	"time"

	"github.com/cppla/bottlecaps/models"
)

// Eligibility is the outcome of a claim eligibility check.
type Eligibility int

const (
	EligibilityAllowed Eligibility = iota
	EligibilityAlreadyClaimed
	EligibilityAdminForbidden
)

func (e Eligibility) String() string {
	switch e {
	case EligibilityAllowed:
		return "allowed"
	case EligibilityAlreadyClaimed:
		return models.ClaimResultAlreadyClaimed
	case EligibilityAdminForbidden:
		return models.ClaimResultAdminForbidden
	}
	return "unknown"
}

// Err maps a rejection to its sentinel error; nil when allowed.
func (e Eligibility) Err() error {
	switch e {
	case EligibilityAlreadyClaimed:
		return ErrNotEligible
	case EligibilityAdminForbidden:
		return ErrAdminForbidden
	}
	return nil
}

// CheckEligibility decides whether user may claim at now. Administrators are
// rejected before the cooldown is looked at.
func CheckEligibility(user *models.User, now time.Time, cooldown time.Duration) Eligibility {
	if user.IsAdmin {
		return EligibilityAdminForbidden
	}
	if !IsClaimAllowed(user.LastClaim, now, cooldown) {
		return EligibilityAlreadyClaimed
	}
	return EligibilityAllowed
}
