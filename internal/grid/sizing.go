package grid

import "github.com/shopspring/decimal"

// BuyAmount returns min(max_investment*position_ratio, max_investment-current_investment).
func BuyAmount(maxInvestment, positionRatio, currentInvestment decimal.Decimal) decimal.Decimal {
	byRatio := maxInvestment.Mul(positionRatio)
	headroom := maxInvestment.Sub(currentInvestment)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}
	if byRatio.LessThan(headroom) {
		return byRatio
	}
	return headroom
}

// BuyQty returns floor(amount/price/100)*100, or 0 if the resulting trade
// would be below the 100-share or 100-currency-unit minimum.
func BuyQty(amount, price decimal.Decimal) int {
	if price.IsZero() {
		return 0
	}
	lots := amount.Div(price).Div(decimal.NewFromInt(100)).Floor()
	qty := int(lots.IntPart()) * 100
	if qty < 100 {
		return 0
	}
	if price.Mul(decimal.NewFromInt(int64(qty))).LessThan(decimal.NewFromInt(100)) {
		return 0
	}
	return qty
}

// SellQty returns floor(available*positionRatio/100)*100, or 0 if below
// the 100-share minimum or if it would leave available negative.
func SellQty(available int, positionRatio decimal.Decimal) int {
	lots := decimal.NewFromInt(int64(available)).Mul(positionRatio).Div(decimal.NewFromInt(100)).Floor()
	qty := int(lots.IntPart()) * 100
	if qty < 100 || qty > available {
		return 0
	}
	return qty
}
