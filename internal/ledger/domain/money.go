package ledger

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits an amount may carry.
const MoneyScale = 2

// CheckAmountScale rejects amounts finer than MoneyScale.
func CheckAmountScale(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(MoneyScale)) {
		return Invalid(CodeAmountPrecision, "%s %s has more than %d decimal places", field, amount.String(), MoneyScale)
	}
	return nil
}

// FormatMoney renders an amount with MoneyScale fractional digits.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(MoneyScale)
}

// SumPayments totals payment amounts.
func SumPayments(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, payment := range payments {
		total = total.Add(payment.Amount)
	}
	return total
}
