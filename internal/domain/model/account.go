package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tempo/errs"
)

// Account mirrors the last AccountState reported for an account id.
type Account struct {
	ID           AccountID
	Currency     string
	CashBalance  decimal.Decimal
	CashStartDay decimal.Decimal
	MarginUsed   decimal.Decimal
	LastUpdated  time.Time
}

// NewAccount builds an account from its initial state event.
func NewAccount(state AccountState) (*Account, error) {
	if state.AccountID == "" {
		return nil, errs.New("model/account", errs.CodeInvalid, errs.WithMessage("account id required"))
	}
	a := &Account{ID: state.AccountID}
	a.set(state)
	return a, nil
}

// Apply replaces every balance field with state.
func (a *Account) Apply(state AccountState) error {
	if state.AccountID != a.ID {
		return errs.New("model/account", errs.CodeInvalid,
			errs.WithMessage("state addressed to another account"),
			errs.WithField("account_id", string(a.ID)),
			errs.WithField("state_account_id", string(state.AccountID)))
	}
	a.set(state)
	return nil
}

func (a *Account) set(state AccountState) {
	a.Currency = state.Currency
	a.CashBalance = state.CashBalance
	a.CashStartDay = state.CashStartDay
	a.MarginUsed = state.MarginUsed
	a.LastUpdated = state.Timestamp.UTC()
}

// FreeEquity is the cash balance net of margin.
func (a *Account) FreeEquity() decimal.Decimal {
	return a.CashBalance.Sub(a.MarginUsed)
}
