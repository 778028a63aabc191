package core

import (
	"encoding/json"
	"sort"
)

// SummaryTotals holds income and expense sums. Balance is always derived,
// so a balance field sent by the server is discarded on decode.
type SummaryTotals struct {
	Income  Money
	Expense Money
}

// MonthlyPoint is one month of the income/expense series.
type MonthlyPoint struct {
	Month   string `json:"month"` // YYYY-MM
	Income  Money  `json:"income"`
	Expense Money  `json:"expense"`
}

// CategoryAggregate is a per-category total as reported by the analytics endpoint.
type CategoryAggregate struct {
	Category string `json:"_id"`
	Total    Money  `json:"totalAmount"`
	Count    int    `json:"count"`
}

// Summary is the /summary payload.
type Summary struct {
	Totals SummaryTotals `json:"totals"`
	// ByCategory is passed through untouched; nothing in this module reads it.
	ByCategory json.RawMessage `json:"byCategory,omitempty"`
	Monthly    []MonthlyPoint  `json:"monthly"`
}

func NewTotals(income, expense Money) SummaryTotals {
	return SummaryTotals{Income: income, Expense: expense}
}

func (t SummaryTotals) Balance() Money {
	return t.Income.Sub(t.Expense)
}

type totalsWire struct {
	Income  Money  `json:"income"`
	Expense Money  `json:"expense"`
	Balance *Money `json:"balance,omitempty"`
}

func (t SummaryTotals) MarshalJSON() ([]byte, error) {
	b := t.Balance()
	return json.Marshal(totalsWire{Income: t.Income, Expense: t.Expense, Balance: &b})
}

func (t *SummaryTotals) UnmarshalJSON(data []byte) error {
	var w totalsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = NewTotals(w.Income, w.Expense)
	return nil
}

// Normalize orders the monthly series chronologically, most recent last.
func (s *Summary) Normalize() {
	sort.SliceStable(s.Monthly, func(i, j int) bool {
		return s.Monthly[i].Month < s.Monthly[j].Month
	})
	if s.Monthly == nil {
		s.Monthly = []MonthlyPoint{}
	}
}

// Summarize aggregates a transaction list locally. It backs the offline
// snapshot and any view that must not wait on the backend.
func Summarize(txs []Transaction) (Summary, []CategoryAggregate) {
	var income, expense Money
	months := map[string]*MonthlyPoint{}
	cats := map[string]*CategoryAggregate{}
	var order []string

	for _, t := range txs {
		label := t.Date.MonthLabel()
		mp, ok := months[label]
		if !ok {
			mp = &MonthlyPoint{Month: label}
			months[label] = mp
		}
		switch t.Type {
		case Income:
			income = income.Add(t.Amount)
			mp.Income = mp.Income.Add(t.Amount)
		case Expense:
			expense = expense.Add(t.Amount)
			mp.Expense = mp.Expense.Add(t.Amount)
		}

		ca, ok := cats[t.Category]
		if !ok {
			ca = &CategoryAggregate{Category: t.Category}
			cats[t.Category] = ca
			order = append(order, t.Category)
		}
		ca.Total = ca.Total.Add(t.Amount)
		ca.Count++
	}

	summary := Summary{Totals: NewTotals(income, expense)}
	for _, mp := range months {
		summary.Monthly = append(summary.Monthly, *mp)
	}
	summary.Normalize()

	aggregates := make([]CategoryAggregate, 0, len(order))
	for _, name := range order {
		aggregates = append(aggregates, *cats[name])
	}
	return summary, aggregates
}
