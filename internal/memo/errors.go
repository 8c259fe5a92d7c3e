package memo

import (
	"errors"
	"net/http"

	"github.com/noah-isme/memo-api/internal/common"
)

// Error codes returned in the JSON error envelope.
const (
	CodeMissingItems      = "MISSING_ITEMS"
	CodeMalformedLineItem = "MALFORMED_LINE_ITEM"
	CodeMalformedPaid     = "MALFORMED_PAID"
	CodeTooManyItems      = "TOO_MANY_ITEMS"
	CodeRenderFailed      = "RENDER_FAILED"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
)

// clientError maps parse failures onto 400 responses. It returns nil for
// errors that are not caused by the request.
func clientError(err error) *common.AppError {
	if errors.Is(err, ErrMissingItems) {
		return common.NewAppError(CodeMissingItems, "Missing items", http.StatusBadRequest, err)
	}
	if errors.Is(err, ErrTooManyItems) {
		return common.NewAppError(CodeTooManyItems, "Too many items", http.StatusBadRequest, err)
	}
	var itemErr *MalformedLineItemError
	if errors.As(err, &itemErr) {
		return common.NewAppError(CodeMalformedLineItem, "Malformed line item", http.StatusBadRequest, err).
			WithDetails(map[string]any{
				"index":  itemErr.Index,
				"record": itemErr.Raw,
				"field":  itemErr.Field,
				"reason": itemErr.Err.Error(),
			})
	}
	var paidErr *MalformedPaidError
	if errors.As(err, &paidErr) {
		return common.NewAppError(CodeMalformedPaid, "Malformed paid amount", http.StatusBadRequest, err).
			WithDetails(map[string]any{
				"paid":   paidErr.Raw,
				"reason": paidErr.Err.Error(),
			})
	}
	return nil
}

func renderFailure(err error) *common.AppError {
	return common.NewAppError(CodeRenderFailed, "Failed to render memo", http.StatusInternalServerError, err)
}

func deliveryFailure(err error) *common.AppError {
	return common.NewAppError(CodeDeliveryFailed, "Failed to deliver memo", http.StatusBadGateway, err)
}
