package core

// Expenses may reach 4/5 of monthly income before a warning is shown.
const (
	budgetAlertNum = 4
	budgetAlertDen = 5
)

// CategoryTotal is the sum of one (kind, category) group.
type CategoryTotal struct {
	Kind     Kind
	Category string
	Total    Money
}

// MonthTotals holds income and expense sums for a calendar month.
type MonthTotals struct {
	Income  Money
	Expense Money
}

// BudgetAlert reports whether expenses reached 80% of income and the
// rounded percentage spent. It never fires when there is no income.
func (t MonthTotals) BudgetAlert() (percent int64, alert bool) {
	if t.Income.Cents <= 0 {
		return 0, false
	}
	if t.Expense.Cents*budgetAlertDen < t.Income.Cents*budgetAlertNum {
		return 0, false
	}
	percent = t.Expense.Decimal().Div(t.Income.Decimal()).Shift(2).Round(0).IntPart()
	return percent, true
}
