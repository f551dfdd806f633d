package services

import "errors"

var (
	// ErrNotEligible means the cooldown since the last claim has not elapsed.
	ErrNotEligible = errors.New("claim cooldown has not elapsed")
	// ErrAdminForbidden means the user is an administrator; admins never claim.
	ErrAdminForbidden = errors.New("administrators cannot claim")
	// ErrStoreConflict means the conditional write lost a race twice in a row.
	ErrStoreConflict = errors.New("claim conflicted with a concurrent update")
	// ErrStoreUnavailable means the store failed; nothing was credited.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrValidation means an input was out of range.
	ErrValidation = errors.New("validation failed")
	// ErrUserBanned means the user is banned or their username is blacklisted.
	ErrUserBanned = errors.New("user is banned")
	// ErrUserNotFound means the claiming user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrSelfAction means an admin tried to ban or demote themself.
	ErrSelfAction = errors.New("admins cannot ban or demote themselves")
	// ErrPromotionNotFound means the promotion id is unknown.
	ErrPromotionNotFound = errors.New("promotion not found")
)
