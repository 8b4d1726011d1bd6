package domain

import "errors"

var (
	ErrPoolNotFound         = errors.New("pool_not_found")
	ErrConsumerNotFound     = errors.New("consumer_not_found")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInsufficientQuantity = errors.New("insufficient_quantity")
	ErrMultiEntitlement     = errors.New("multi_entitlement_not_allowed")
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrEntitlementNotFound  = errors.New("entitlement_not_found")
)
