package bot

import (
	"errors"
	"fmt"

	"finbot/internal/core"
)

// State is a step of the button driven registration flow.
type State int

const (
	StateIdle State = iota
	StateAwaitingCategory
	StateAwaitingCustomCategoryName
	StateAwaitingAmount
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCategory:
		return "awaiting_category"
	case StateAwaitingCustomCategoryName:
		return "awaiting_custom_category_name"
	case StateAwaitingAmount:
		return "awaiting_amount"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrUnexpectedInput is returned by a transition that is not allowed from
// the session's current state.
var ErrUnexpectedInput = errors.New("input not expected in current state")

// Session is the per-chat flow state. The zero value is Idle.
type Session struct {
	State    State
	Kind     core.Kind
	Category string
}

// StartFlow begins a fresh session for kind, discarding whatever came before.
func StartFlow(kind core.Kind) (Session, error) {
	if !kind.Valid() {
		return Session{}, core.ErrInvalidKind
	}
	return Session{State: StateAwaitingCategory, Kind: kind}, nil
}

// ChooseCategory moves AwaitingCategory to AwaitingAmount.
func (s Session) ChooseCategory(category string) (Session, error) {
	if s.State != StateAwaitingCategory {
		return s, ErrUnexpectedInput
	}
	c, err := core.NormalizeCategory(category)
	if err != nil {
		return s, err
	}
	return Session{State: StateAwaitingAmount, Kind: s.Kind, Category: c}, nil
}

// ChooseCustomCategory moves AwaitingCategory to AwaitingCustomCategoryName.
func (s Session) ChooseCustomCategory() (Session, error) {
	if s.State != StateAwaitingCategory {
		return s, ErrUnexpectedInput
	}
	return Session{State: StateAwaitingCustomCategoryName, Kind: s.Kind}, nil
}

// NameCategory moves AwaitingCustomCategoryName to AwaitingAmount. An
// invalid name leaves the session unchanged.
func (s Session) NameCategory(name string) (Session, error) {
	if s.State != StateAwaitingCustomCategoryName {
		return s, ErrUnexpectedInput
	}
	c, err := core.NormalizeCategory(name)
	if err != nil {
		return s, err
	}
	return Session{State: StateAwaitingAmount, Kind: s.Kind, Category: c}, nil
}

// EnterAmount parses the amount and, when valid, returns the transaction to
// record together with the Idle session that follows. An invalid amount
// leaves the session unchanged.
func (s Session) EnterAmount(ownerID int64, input string) (Session, core.NewTransaction, error) {
	if s.State != StateAwaitingAmount {
		return s, core.NewTransaction{}, ErrUnexpectedInput
	}
	amount, err := core.ParseAmount(input)
	if err != nil {
		return s, core.NewTransaction{}, err
	}
	nt := core.NewTransaction{
		OwnerID:  ownerID,
		Kind:     s.Kind,
		Amount:   amount,
		Category: s.Category,
	}
	return Session{}, nt, nil
}
