package main

import (
	"github.com/dogmatiq/journal"
)

// Deposited is an event that occurs when funds are deposited into an account.
type Deposited struct {
	Amount int `json:"amount"`
}

// Account is an event-sourced bank account.
type Account struct {
	ID        journal.Identity
	AccountID string
	Balance   int
}

// Identity returns the runtime identity of this account instance.
func (a *Account) Identity() journal.Identity {
	return a.ID
}

// PersistenceID returns the ID of the account's event stream.
func (a *Account) PersistenceID() string {
	return "account:" + a.AccountID
}

// ApplyEvent updates the account's balance.
func (a *Account) ApplyEvent(ev any) {
	switch ev := ev.(type) {
	case Deposited:
		a.Balance += ev.Amount
	}
}
