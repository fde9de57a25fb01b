package errutil

import (
	"context"
	"errors"
	"net/http"
)

// HTTPCode converts the CoreStatus to its closest HTTP status code
// equivalent.
func (s CoreStatus) HTTPCode() int {
	switch s {
	case StatusBadRequest, StatusInvalidAuctionData, StatusInvalidAuctionID:
		return http.StatusBadRequest
	case StatusNotFound, StatusAuctionNotFound:
		return http.StatusNotFound
	case StatusNoActiveAuction:
		return http.StatusNotFound
	case StatusConflict, StatusBidTooLow:
		return http.StatusConflict
	case StatusForbidden, StatusBlacklisted, StatusReputationTooLow:
		return http.StatusForbidden
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HTTPResponse normalises a domain error into the status code and JSON body
// the HTTP layer should return.
func HTTPResponse(err error) (int, interface{}) {
	if err == nil {
		return http.StatusOK, nil
	}

	if errors.Is(err, context.Canceled) {
		return 499, map[string]interface{}{"error": map[string]interface{}{"code": "client_closed_request", "message": err.Error()}}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, map[string]interface{}{"error": map[string]interface{}{"code": "timeout", "message": err.Error()}}
	}

	var base BaseError
	if errors.As(err, &base) {
		return base.Code.HTTPCode(), base.JSON()
	}

	return http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{"code": StatusInternal, "message": err.Error()},
	}
}
