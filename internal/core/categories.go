package core

var (
	incomeCategories  = []string{"Salary", "Freelance", "Business", "Investment", "Gift", "Other Income"}
	expenseCategories = []string{"Home Rent", "Food & Essentials", "Transport", "Entertainment", "Healthcare", "Other Expense"}
)

// CategoriesFor returns the category list offered for a transaction type.
// An unknown type yields every category, income first.
func CategoriesFor(t TransactionType) []string {
	switch t {
	case Income:
		return append([]string(nil), incomeCategories...)
	case Expense:
		return append([]string(nil), expenseCategories...)
	default:
		out := make([]string, 0, len(incomeCategories)+len(expenseCategories))
		out = append(out, incomeCategories...)
		return append(out, expenseCategories...)
	}
}

func IsValidCategory(t TransactionType, category string) bool {
	var list []string
	switch t {
	case Income:
		list = incomeCategories
	case Expense:
		list = expenseCategories
	default:
		return false
	}
	for _, c := range list {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultCategory is the catch-all bucket for a type.
func DefaultCategory(t TransactionType) string {
	if t == Income {
		return "Other Income"
	}
	return "Other Expense"
}
