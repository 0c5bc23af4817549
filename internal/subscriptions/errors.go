package subscriptions

import "errors"

// Service errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNotOwner             = errors.New("subscription belongs to another user")
)
