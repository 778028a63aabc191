package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Connecting   Connectivity = "connecting"
	Connected    Connectivity = "connected"
	Disconnected Connectivity = "disconnected"
)

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

const (
	dateLayout   = "2006-01-02"
	localeLayout = "2/1/2006" // en-IN short date
	maxTitleLen  = 200
)

type (
	TransactionType string

	// Connectivity is the coordinator's belief about backend reachability.
	Connectivity string

	// ChangeKind names a confirmed mutation for downstream listeners.
	ChangeKind string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID          string          `json:"_id,omitempty"`
		Title       string          `json:"title"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    string          `json:"category"`
		Date        Date            `json:"date"`
		Description string          `json:"description,omitempty"`
	}

	// TransactionUpdate carries only the fields being changed.
	TransactionUpdate struct {
		Title       *string          `json:"title,omitempty"`
		Amount      *Money           `json:"amount,omitempty"`
		Type        *TransactionType `json:"type,omitempty"`
		Category    *string          `json:"category,omitempty"`
		Date        *Date            `json:"date,omitempty"`
		Description *string          `json:"description,omitempty"`
	}
)

var (
	ErrInvalidDay      = errors.New("invalid day")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrEmptyTitle      = errors.New("empty title")
	ErrTitleTooLong    = errors.New("title too long (max 200 characters)")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrUnknownCategory = errors.New("category not valid for transaction type")
	ErrEmptyUpdate     = errors.New("update has no fields")
	ErrInvalidYear     = errors.New("invalid year")

	errZeroDate = errors.New("date cannot be zero")
)

// IsValidation reports whether err is a local input error, as opposed to a
// backend or transport failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidDay, ErrInvalidMonth, ErrInvalidDate, ErrInvalidAmount,
		ErrNegativeAmount, ErrEmptyTitle, ErrTitleTooLong, ErrInvalidType,
		ErrUnknownCategory, ErrEmptyUpdate, ErrInvalidYear, errZeroDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", ErrInvalidType
	}
	return t, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errZeroDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its UTC calendar date.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts a plain calendar date or a full RFC 3339 timestamp,
// which is what the backend echoes back for stored records.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, ErrInvalidDate
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Locale formats the date the way the export file presents it (d/m/yyyy).
func (d Date) Locale() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(localeLayout)
}

// MonthLabel returns the YYYY-MM label used by monthly summaries.
func (d Date) MonthLabel() string {
	return d.Format("2006-01")
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ErrInvalidDate
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewDraft returns an unsaved transaction with the form defaults applied.
func NewDraft(now time.Time) Transaction {
	return Transaction{
		Type:     Expense,
		Category: DefaultCategory(Expense),
		Date:     DateOf(now),
	}
}

func (t Transaction) Validate() error {
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if !IsValidCategory(t.Type, t.Category) {
		return ErrUnknownCategory
	}
	return t.Date.Validate()
}

func validateTitle(title string) error {
	if len(strings.TrimSpace(title)) == 0 {
		return ErrEmptyTitle
	}
	if len(title) > maxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

// UnmarshalJSON accepts both "_id" and "id" as the identifier key.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Transaction(aux.plain)
	if t.ID == "" {
		t.ID = aux.AltID
	}
	return nil
}

func (u TransactionUpdate) IsEmpty() bool {
	return u.Title == nil && u.Amount == nil && u.Type == nil &&
		u.Category == nil && u.Date == nil && u.Description == nil
}

// Validate checks the fields that are present. Category is checked against
// the new type when both change, otherwise against every known list.
func (u TransactionUpdate) Validate() error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.Title != nil {
		if err := validateTitle(*u.Title); err != nil {
			return err
		}
	}
	if u.Amount != nil && u.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if u.Type != nil && !u.Type.IsValid() {
		return ErrInvalidType
	}
	if u.Category != nil {
		switch {
		case u.Type != nil && !IsValidCategory(*u.Type, *u.Category):
			return ErrUnknownCategory
		case u.Type == nil && !IsValidCategory(Income, *u.Category) && !IsValidCategory(Expense, *u.Category):
			return ErrUnknownCategory
		}
	}
	if u.Date != nil {
		return u.Date.Validate()
	}
	return nil
}

// Apply returns t with the present fields of u overlaid.
func (u TransactionUpdate) Apply(t Transaction) Transaction {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Amount != nil {
		t.Amount = *u.Amount
	}
	if u.Type != nil {
		t.Type = *u.Type
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Date != nil {
		t.Date = *u.Date
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	return t
}
