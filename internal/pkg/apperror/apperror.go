// internal/pkg/apperror/apperror.go
package apperror

import (
	"errors"
	"fmt"
)

// Code identifies a business rule failure
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeVariantUnavailable   Code = "variant_unavailable"
	CodeInsufficientStock    Code = "insufficient_stock"
	CodePriceUnavailable     Code = "price_unavailable"
	CodeInvalidQuantity      Code = "invalid_quantity"
	CodeEmptyCart            Code = "empty_cart"
	CodeItemNotOrderable     Code = "item_not_orderable"
	CodePriceChanged         Code = "price_changed"
	CodeInvalidTransition    Code = "invalid_transition"
	CodeOrderNotCancellable  Code = "order_not_cancellable"
	CodeOrderNotRefundable   Code = "order_not_refundable"
	CodeAccessDenied         Code = "access_denied"
	CodeCouponNotApplicable  Code = "coupon_not_applicable"
	CodeConflict             Code = "conflict"
	CodeInvalidOwner         Code = "invalid_owner"
	CodeValidation           Code = "validation_failed"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "entity not found"}
	ErrVariantUnavailable  = &Error{Code: CodeVariantUnavailable, Message: "variant is not available"}
	ErrInsufficientStock   = &Error{Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrPriceUnavailable    = &Error{Code: CodePriceUnavailable, Message: "no price for this currency and customer type"}
	ErrInvalidQuantity     = &Error{Code: CodeInvalidQuantity, Message: "quantity must be at least 1"}
	ErrEmptyCart           = &Error{Code: CodeEmptyCart, Message: "cart is empty"}
	ErrItemNotOrderable    = &Error{Code: CodeItemNotOrderable, Message: "item cannot be ordered"}
	ErrPriceChanged        = &Error{Code: CodePriceChanged, Message: "item price has changed"}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrOrderNotCancellable = &Error{Code: CodeOrderNotCancellable, Message: "order cannot be cancelled"}
	ErrOrderNotRefundable  = &Error{Code: CodeOrderNotRefundable, Message: "order cannot be refunded"}
	ErrAccessDenied        = &Error{Code: CodeAccessDenied, Message: "access denied"}
	ErrCouponNotApplicable = &Error{Code: CodeCouponNotApplicable, Message: "coupon cannot be applied"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "concurrent modification"}
	ErrInvalidOwner        = &Error{Code: CodeInvalidOwner, Message: "cart must be owned by a user or a guest token"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "invalid request"}
)

// Error is a business rule failure carrying a stable code
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates an error with a formatted message
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of e with the given detail added
func (e *Error) With(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// NotFound builds a not_found error naming the missing entity
func NotFound(entity string, id any) *Error {
	return New(CodeNotFound, "%s %v not found", entity, id).With("entity", entity).With("id", id)
}

// CodeOf returns the code of the first *Error in err's chain, or "" when none
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
