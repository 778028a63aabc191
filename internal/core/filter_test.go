package core

import "testing"

func TestFilterQueryOmitsEmptyFields(t *testing.T) {
	cases := []struct {
		name string
		f    FilterCriteria
		want string
	}{
		{"all empty", FilterCriteria{}, ""},
		{"whitespace only", FilterCriteria{Category: "  ", Search: " "}, ""},
		{"type only", FilterCriteria{Type: Expense}, "type=expense"},
		{"month and year", FilterCriteria{Month: 5, Year: 2024}, "month=5&year=2024"},
		{"all set", FilterCriteria{Type: Income, Category: "Salary", Month: 1, Year: 2024, Search: "acme co"},
			"category=Salary&month=1&search=acme+co&type=income&year=2024"},
	}
	for _, tc := range cases {
		if got := tc.f.Encode(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestFilterKey(t *testing.T) {
	if got := (FilterCriteria{}).Key(); got != "all" {
		t.Fatalf("expected all, got %q", got)
	}
	if got := (FilterCriteria{Year: 2024}).Key(); got != "year=2024" {
		t.Fatalf("expected year=2024, got %q", got)
	}
}

func TestFilterValidate(t *testing.T) {
	if err := (FilterCriteria{Month: 12, Year: 2024, Type: Income}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (FilterCriteria{Month: 13}).Validate(); err != ErrInvalidMonth {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if err := (FilterCriteria{Type: "refund"}).Validate(); err != ErrInvalidType {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}
