package futures_usdt

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Exchange codes that mean the requested setting is already in place.
const (
	CodeMarginTypeUnchanged   = -4046
	CodePositionModeUnchanged = -4059
)

// APIError is a non-2xx response from the exchange.
type APIError struct {
	Status   int
	Code     int
	Msg      string
	Endpoint string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance usdt futures %s: status %d code %d: %s", e.Endpoint, e.Status, e.Code, e.Msg)
}

func newAPIError(status int, endpoint string, body []byte) *APIError {
	e := &APIError{Status: status, Endpoint: endpoint}
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := sonic.Unmarshal(body, &payload); err == nil && payload.Code != 0 {
		e.Code = payload.Code
		e.Msg = payload.Msg
	} else {
		e.Msg = string(body)
	}
	return e
}

// IsNoChange reports whether err only says the setting was already applied.
func IsNoChange(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeMarginTypeUnchanged || apiErr.Code == CodePositionModeUnchanged
}
