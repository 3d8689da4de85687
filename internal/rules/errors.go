package rules

import (
	"errors"
	"fmt"
)

// ErrUnknownSymbol is returned when no rules are registered for a symbol.
var ErrUnknownSymbol = errors.New("unknown symbol")

// RuleError identifies the trading rule an order violated. Rule is the
// filter kind (PRICE_FILTER, LOT_SIZE, ...) so callers can map failures
// without parsing the message.
type RuleError struct {
	Rule string
	Msg  string
}

func (e *RuleError) Error() string {
	return e.Msg
}

func ruleErrorf(rule, format string, args ...interface{}) *RuleError {
	return &RuleError{Rule: rule, Msg: fmt.Sprintf(format, args...)}
}
