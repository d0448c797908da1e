package models

import "fmt"

// Money is an explicit price value: amount in minor units plus ISO currency
// code. It is populated once at the ingestion boundary so downstream code
// never falls back on optional nested price fields.
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func (m Money) IsZero() bool {
	return m.Amount == 0 && m.Currency == ""
}

func (m Money) String() string {
	return fmt.Sprintf("%s %d.%02d", m.Currency, m.Amount/100, m.Amount%100)
}
