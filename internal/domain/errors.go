package domain

import "errors"

var (
	// ErrInsufficientFunds is returned when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBalanceOverflow is returned when a credit would push a balance past math.MaxInt64.
	ErrBalanceOverflow = errors.New("balance overflow")
	// ErrAccountNotFound is returned when a lookup finds no ledger row.
	ErrAccountNotFound = errors.New("account not found")
)
