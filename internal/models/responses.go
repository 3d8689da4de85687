package models

// ErrorResponse is the envelope for all error replies.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorDetail carries the machine-readable code and human message. Rule is
// set when the error is a trading-rule violation.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(code, message, requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     ErrorDetail{Code: code, Message: message},
		RequestID: requestID,
	}
}

// NewRuleErrorResponse builds an error envelope for a rule violation.
func NewRuleErrorResponse(rule, message, requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     ErrorDetail{Code: "RULE_VIOLATION", Message: message, Rule: rule},
		RequestID: requestID,
	}
}

// ValidateResponse reports a validation outcome.
type ValidateResponse struct {
	Valid  bool   `json:"valid"`
	Symbol string `json:"symbol"`
}

// RoundResponse returns grid-adjusted values.
type RoundResponse struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity,omitempty"`
}

// FilterInfo describes one trading rule in a filter listing.
type FilterInfo struct {
	Kind   string      `json:"kind"`
	Detail interface{} `json:"detail"`
}

// FiltersResponse lists a symbol's trading rules in evaluation order.
type FiltersResponse struct {
	Symbol  string       `json:"symbol"`
	Filters []FilterInfo `json:"filters"`
}

// OrderResponse reports a placed (or signed-but-not-submitted) order.
type OrderResponse struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    string `json:"price,omitempty"`
	Quantity string `json:"quantity"`
	Status   string `json:"status"`
	OrderID  int64  `json:"order_id,omitempty"`
}

// HealthResponse is the health probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Symbols int    `json:"symbols"`
}
