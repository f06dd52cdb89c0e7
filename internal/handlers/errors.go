package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/trademate/api/internal/platform/catalog"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/platform/validation"
	"github.com/trademate/api/internal/services"
)

var (
	badRequestErrors = []error{
		services.ErrCartInvalidInput,
		services.ErrEligibilityInvalidCart,
		services.ErrOrderInvalidInput,
		services.ErrPaymentInvalidInput,
		services.ErrCreditInvalidInput,
		services.ErrReportInvalidInput,
		services.ErrDeliveryLocationInvalidInput,
		services.ErrTransactionInvalidInput,
	}
	notFoundErrors = []error{
		services.ErrCartNotFound,
		services.ErrCartItemNotFound,
		services.ErrOrderNotFound,
		services.ErrPaymentNotFound,
		services.ErrPaymentInvoiceNotFound,
		services.ErrCreditLimitNotFound,
		services.ErrDeliveryLocationUserNotFound,
		services.ErrDeliveryLocationNotFound,
	}
	conflictErrors = []error{
		services.ErrOrderAmbiguous,
		services.ErrOrderConflict,
		services.ErrOrderNotEditable,
		services.ErrTransactionNumberExhausted,
	}
)

// failureFor maps a service error onto the v1 failure envelope. Stock reservation failures stay 500
// and carry the upstream details.
func failureFor(err error) httpx.Failure {
	var verr *validation.Error
	if errors.As(err, &verr) {
		f := httpx.BadRequest(verr.Message)
		if len(verr.Fields) > 0 {
			f = f.With(map[string]any{"fields": verr.Fields})
		}
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewFailure(http.StatusGatewayTimeout, "Timeout", "request timed out")
	case matchesAny(err, badRequestErrors):
		return httpx.BadRequest(err.Error())
	case matchesAny(err, notFoundErrors):
		return httpx.NotFound(err.Error())
	case matchesAny(err, conflictErrors):
		return httpx.Conflict(err.Error())
	case errors.Is(err, services.ErrCartStockUnavailable):
		f := httpx.NewFailure(http.StatusInternalServerError, "Stock reservation failed", err.Error())
		var stockErr *catalog.StockError
		if errors.As(err, &stockErr) {
			f = f.With(map[string]any{
				"operation":      string(stockErr.Op),
				"unique_id":      stockErr.Line.UniqueID,
				"variant_id":     stockErr.Line.VariantID,
				"qty":            stockErr.Line.Qty,
				"upstreamStatus": stockErr.StatusCode,
			})
		}
		return f
	}
	return httpx.Internal(err.Error())
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	httpx.WriteFailure(ctx, w, failureFor(err))
}

// writeLegacyServiceError writes the {"error":...} shape with the status the v1 surface would use.
func writeLegacyServiceError(w http.ResponseWriter, err error) {
	f := failureFor(err)
	httpx.WriteLegacyError(w, f.Status, f.Message, f.Extra)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteFailure(ctx, w, httpx.Unauthorized("authentication required"))
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteFailure(ctx, w, httpx.NewFailure(http.StatusServiceUnavailable, "Unavailable", name+" service unavailable"))
}
