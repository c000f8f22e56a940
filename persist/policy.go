package persist

import (
	"context"
	"fmt"
)

// ConfirmFunc asks whether to save although the record existingID already
// holds an identical design.
type ConfirmFunc func(ctx context.Context, existingID string) (bool, error)

// DuplicatePolicy decides what happens when a save would duplicate a record.
type DuplicatePolicy struct {
	name    string
	confirm ConfirmFunc
}

// AlwaysSave writes a new record regardless of duplicates.
func AlwaysSave() DuplicatePolicy {
	return DuplicatePolicy{name: "save"}
}

// AlwaysAbort declines every duplicate save.
func AlwaysAbort() DuplicatePolicy {
	return DuplicatePolicy{name: "abort"}
}

// Ask delegates the decision to fn.
func Ask(fn ConfirmFunc) DuplicatePolicy {
	return DuplicatePolicy{name: "ask", confirm: fn}
}

// ParseDuplicatePolicy accepts "save" and "abort".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "save":
		return AlwaysSave(), nil
	case "abort":
		return AlwaysAbort(), nil
	}
	return DuplicatePolicy{}, fmt.Errorf("unknown duplicate policy %q", s)
}

func (p DuplicatePolicy) String() string {
	if p.name == "" {
		return "save"
	}
	return p.name
}

func (p DuplicatePolicy) decide(ctx context.Context, existingID string) (bool, error) {
	switch p.name {
	case "abort":
		return false, nil
	case "ask":
		if p.confirm == nil {
			return false, nil
		}
		return p.confirm(ctx, existingID)
	}
	return true, nil
}
