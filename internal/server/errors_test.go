package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	exchangedomain "github.com/smallbiznis/payway/internal/exchangerate/domain"
	promodomain "github.com/smallbiznis/payway/internal/promocode/domain"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	transactiondomain "github.com/smallbiznis/payway/internal/transaction/domain"
)

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		wantType string
	}{
		{transactiondomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
		{transactiondomain.ErrUnsupportedCurrency, http.StatusBadRequest, "validation_error"},
		{exchangedomain.ErrRateUnavailable, http.StatusServiceUnavailable, "rate_unavailable"},
		{promodomain.ErrCodeNotFound, http.StatusNotFound, "not_found"},
		{transactiondomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{promodomain.ErrCodeExpired, http.StatusGone, "code_expired"},
		{promodomain.ErrCodeAlreadyClaimed, http.StatusConflict, "conflict"},
		{transactiondomain.ErrInvalidTransition, http.StatusConflict, "conflict"},
		{transactiondomain.ErrPayoutFailed, http.StatusBadGateway, "payout_failed"},
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{providerdomain.ErrProviderNotFound, http.StatusUnauthorized, "unauthorized"},
		{errors.New("something else"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		status, payload := mapError(tc.err)
		if status != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, status)
		}
		if payload.Type != tc.wantType {
			t.Fatalf("%v: expected type %s, got %s", tc.err, tc.wantType, payload.Type)
		}
	}
}

func TestMapErrorSeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("%w: wallet unreachable", transactiondomain.ErrPayoutFailed)
	status, payload := mapError(wrapped)
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if payload.Type != "payout_failed" {
		t.Fatalf("expected payout_failed, got %s", payload.Type)
	}
}
