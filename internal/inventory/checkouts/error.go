package checkouts

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodeInvalidQuantity          Code = "INVALID_QUANTITY"
	CodeInvalidDueDate           Code = "INVALID_DUE_DATE"
	CodeInvalidCondition         Code = "INVALID_CONDITION"
	CodeInsufficientAvailability Code = "INSUFFICIENT_AVAILABILITY"
	CodeInsufficientStock        Code = "INSUFFICIENT_STOCK"
	CodeCheckoutClosed           Code = "CHECKOUT_CLOSED"
	CodeQuantityOverReturn       Code = "QUANTITY_OVER_RETURN"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeConflict                 Code = "CONFLICT"
	CodeInternal                 Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func ErrInvalidQuantity(msg string) *APIError {
	return &APIError{Code: CodeInvalidQuantity, Message: msg}
}

func ErrInvalidDueDate(msg string) *APIError {
	return &APIError{Code: CodeInvalidDueDate, Message: msg}
}

func ErrInvalidCondition(got string) *APIError {
	return &APIError{Code: CodeInvalidCondition, Message: "condition must be OK or DAMAGED, got " + got}
}

// ErrInsufficientAvailability: 呼び出し側が対処できるよう実際の利用可能数を持たせる
func ErrInsufficientAvailability(requested uint, available int64) *APIError {
	return &APIError{
		Code:    CodeInsufficientAvailability,
		Message: fmt.Sprintf("requested %d but only %d available", requested, available),
	}
}

func ErrInsufficientStock(onHand uint) *APIError {
	return &APIError{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("cannot remove more than on-hand quantity (%d)", onHand),
	}
}

func ErrCheckoutClosed() *APIError {
	return &APIError{Code: CodeCheckoutClosed, Message: "checkout is already closed"}
}

func ErrOverReturn(remaining uint) *APIError {
	return &APIError{
		Code:    CodeQuantityOverReturn,
		Message: fmt.Sprintf("return quantity exceeds remaining on-loan quantity (%d)", remaining),
	}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument, CodeInvalidQuantity, CodeInvalidDueDate, CodeInvalidCondition:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeInsufficientAvailability, CodeInsufficientStock,
			CodeCheckoutClosed, CodeQuantityOverReturn:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
