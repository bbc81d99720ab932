package futures_usdt

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AccountInfo returns futures account balances.
func (c *Client) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/account", nil)
	if err != nil {
		return nil, err
	}
	var info AccountInfo
	if err := decode(body, &info, "account info"); err != nil {
		return nil, err
	}
	return &info, nil
}

// PositionRisk returns the position view; symbol optional.
func (c *Client) PositionRisk(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var pos []PositionRisk
	if err := decode(body, &pos, "positions"); err != nil {
		return nil, err
	}
	return pos, nil
}

// SetLeverage sets leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return errors.Wrapf(err, "set leverage %s x%d", symbol, leverage)
}

// SetMarginType sets margin type (ISOLATED or CROSSED). An unchanged type is success.
func (c *Client) SetMarginType(ctx context.Context, symbol, marginType string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("marginType", strings.ToUpper(marginType))
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/marginType", params)
	if IsNoChange(err) {
		c.log.Debug("margin type already set", zap.String("symbol", symbol), zap.String("margin_type", marginType))
		return nil
	}
	return errors.Wrapf(err, "set margin type %s %s", symbol, marginType)
}

// PositionMode reports whether the account is in hedge (dual side) mode.
func (c *Client) PositionMode(ctx context.Context) (bool, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/positionSide/dual", nil)
	if err != nil {
		return false, err
	}
	var out struct {
		DualSidePosition bool `json:"dualSidePosition"`
	}
	if err := decode(body, &out, "position mode"); err != nil {
		return false, err
	}
	return out.DualSidePosition, nil
}

// SetPositionMode enables/disables hedge mode. An unchanged mode is success.
func (c *Client) SetPositionMode(ctx context.Context, dual bool) error {
	params := url.Values{}
	params.Set("dualSidePosition", strconv.FormatBool(dual))
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params)
	if IsNoChange(err) {
		c.log.Debug("position mode already set", zap.Bool("dual", dual))
		return nil
	}
	return errors.Wrap(err, "set position mode")
}

// Margin adjustment direction for ModifyPositionMargin.
const (
	MarginAdd    = 1
	MarginReduce = 2
)

// ModifyPositionMargin adds or removes isolated margin.
func (c *Client) ModifyPositionMargin(ctx context.Context, symbol, positionSide string, amount float64, direction int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("amount", formatFloat(amount))
	params.Set("type", strconv.Itoa(direction))
	if positionSide != "" {
		params.Set("positionSide", positionSide)
	}
	_, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/positionMargin", params)
	return errors.Wrapf(err, "modify margin %s", symbol)
}
