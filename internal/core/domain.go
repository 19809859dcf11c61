package core

import (
	"errors"
	"strings"
	"time"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// DateLayout is the calendar-day format used in storage and exports.
const DateLayout = "2006-01-02"

type (
	// Kind distinguishes money going out from money coming in.
	Kind string

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID       int64
		OwnerID  int64
		Kind     Kind
		Amount   Money
		Category string
		Date     time.Time
	}

	// NewTransaction carries the caller-supplied fields of a transaction;
	// the id and date are assigned by storage.
	NewTransaction struct {
		OwnerID  int64
		Kind     Kind
		Amount   Money
		Category string
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid kind")
	ErrEmptyCategory = errors.New("empty category")
	ErrCategoryLong  = errors.New("category too long (max 64 characters)")
)

const maxCategoryLen = 64

var kindAliases = map[string]Kind{
	"gasto":   KindExpense,
	"despesa": KindExpense,
	"expense": KindExpense,
	"receita": KindIncome,
	"entrada": KindIncome,
	"income":  KindIncome,
}

// ParseKind maps user input (Portuguese or English) to a Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", ErrInvalidKind
	}
	return k, nil
}

func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// Label is the user-facing singular name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindExpense:
		return "gasto"
	case KindIncome:
		return "receita"
	default:
		return string(k)
	}
}

// NormalizeCategory trims, collapses inner whitespace and lower-cases s.
func NormalizeCategory(s string) (string, error) {
	c := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if c == "" {
		return "", ErrEmptyCategory
	}
	if len([]rune(c)) > maxCategoryLen {
		return "", ErrCategoryLong
	}
	return c, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t NewTransaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
