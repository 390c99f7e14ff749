package payment

import (
	"time"

	"schoolride/internal/types"
)

// Split percentages; the gateway fee is per mille (3.3%).
const (
	upfrontPercent     = 25
	commissionPercent  = 15
	gatewayFeePerMille = 33
	balanceDueLeadDays = 2
)

type Split struct {
	Total          int64     `json:"total"`
	Upfront        int64     `json:"upfront"`
	Balance        int64     `json:"balance"`
	BalanceDueDate time.Time `json:"balance_due_date"`
}

// NewSplit divides total into a 25% upfront part (rounded up) and the remaining balance,
// due two days before endDate.
func NewSplit(total int64, endDate time.Time) Split {
	up := ceilDiv(total*upfrontPercent, 100)
	return Split{
		Total:          total,
		Upfront:        up,
		Balance:        total - up,
		BalanceDueDate: types.Day(endDate).AddDate(0, 0, -balanceDueLeadDays),
	}
}

type Breakdown struct {
	Amount           int64 `json:"amount"`
	GatewayFee       int64 `json:"gateway_fee"`
	SystemCommission int64 `json:"system_commission"`
	DriverEarning    int64 `json:"driver_earning"`
}

// NewBreakdown splits one payment into gateway fee, platform commission and driver earning.
// The three parts always sum to amount; on tiny amounts the driver share is never negative.
func NewBreakdown(amount int64) Breakdown {
	if amount <= 0 {
		return Breakdown{Amount: amount}
	}
	fee := ceilDiv(amount*gatewayFeePerMille, 1000)
	commission := ceilDiv(amount*commissionPercent, 100)
	earning := amount - fee - commission
	if earning < 0 {
		commission += earning
		earning = 0
		if commission < 0 {
			fee += commission
			commission = 0
		}
	}
	return Breakdown{Amount: amount, GatewayFee: fee, SystemCommission: commission, DriverEarning: earning}
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return a / b
	}
	return (a + b - 1) / b
}
