// README: Money amounts in whole currency units.
package types

// DefaultCurrency is the settlement currency for every booking and payment.
const DefaultCurrency = "LKR"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
