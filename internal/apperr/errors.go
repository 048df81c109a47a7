package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how callers are expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindRejected // business rule said no, e.g. not enough stock
	KindInvalid
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindRejected:
		return "BUSINESS_REJECTION"
	case KindInvalid:
		return "INVALID_REQUEST"
	case KindConflict:
		return "CONFLICT"
	case KindTransient:
		return "TRANSIENT_INFRASTRUCTURE"
	default:
		return "INTERNAL"
	}
}

// Error is the structured error returned across service boundaries.
// Requested and Available carry stock context for rejections.
type Error struct {
	Kind      Kind   `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so sentinels work with errors.Is after being specialised.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

const (
	CodeCustomerNotFound    = "CUSTOMER_NOT_FOUND"
	CodeProductNotFound     = "PRODUCT_NOT_FOUND"
	CodeOrderNotFound       = "ORDER_NOT_FOUND"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeProductDiscontinued = "PRODUCT_DISCONTINUED"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeConflict            = "CONFLICT"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal            = "INTERNAL"
)

var (
	ErrCustomerNotFound    = &Error{Kind: KindNotFound, Code: CodeCustomerNotFound, Message: "customer not found"}
	ErrProductNotFound     = &Error{Kind: KindNotFound, Code: CodeProductNotFound, Message: "product not found"}
	ErrOrderNotFound       = &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "order not found"}
	ErrInsufficientStock   = &Error{Kind: KindRejected, Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrProductDiscontinued = &Error{Kind: KindRejected, Code: CodeProductDiscontinued, Message: "product discontinued"}
	ErrInvalidStatus       = &Error{Kind: KindInvalid, Code: CodeInvalidStatus, Message: "invalid status"}
	ErrInvalidTransition   = &Error{Kind: KindRejected, Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInvalidArgument     = &Error{Kind: KindInvalid, Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrConflict            = &Error{Kind: KindConflict, Code: CodeConflict, Message: "concurrent modification, reload and retry"}
	ErrServiceUnavailable  = &Error{Kind: KindTransient, Code: CodeServiceUnavailable, Message: "service temporarily unavailable, retry later"}
)

func CustomerNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeCustomerNotFound, Message: "customer not found: " + id}
}

func ProductNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeProductNotFound, Message: "product not found: " + id}
}

func OrderNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "order not found: " + id}
}

func InsufficientStock(productID string, requested, available int) *Error {
	return &Error{
		Kind:      KindRejected,
		Code:      CodeInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, requested, available),
		Requested: &requested,
		Available: &available,
	}
}

func ProductDiscontinued(id string) *Error {
	return &Error{Kind: KindRejected, Code: CodeProductDiscontinued, Message: "product discontinued: " + id}
}

func InvalidStatus(s string) *Error {
	return &Error{Kind: KindInvalid, Code: CodeInvalidStatus, Message: fmt.Sprintf("invalid status %q", s)}
}

func InvalidTransition(from, to string) *Error {
	return &Error{Kind: KindRejected, Code: CodeInvalidTransition, Message: fmt.Sprintf("cannot move order from %s to %s", from, to)}
}

func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func Conflict(entity, id string) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: fmt.Sprintf("%s %s was modified concurrently, reload and retry", entity, id)}
}

// Unavailable keeps the cause for logs; Message never leaks it.
func Unavailable(cause error) *Error {
	return &Error{Kind: KindTransient, Code: CodeServiceUnavailable, Message: ErrServiceUnavailable.Message, Err: cause}
}

// KindOf reports the Kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsClient reports errors caused by the caller's input or business state.
// Breakers and retries must not count these as infrastructure failures.
func IsClient(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindRejected, KindInvalid, KindConflict:
		return true
	}
	return false
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindRejected:
		return http.StatusUnprocessableEntity
	case KindInvalid:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Public converts any error into the shape that may be shown to clients.
func Public(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindTransient {
			return ErrServiceUnavailable
		}
		return e
	}
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error"}
}
