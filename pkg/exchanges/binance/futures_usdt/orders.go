package futures_usdt

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"futures-terminal/pkg/exchanges/common"
)

// PlaceOrder submits an order built by the order constructor.
func (c *Client) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	params := orderParams(req)
	body, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return common.OrderResult{}, errors.Wrapf(err, "place %s %s", req.Type, req.Symbol)
	}
	var resp orderResp
	if err := decode(body, &resp, "order"); err != nil {
		return common.OrderResult{}, err
	}
	return common.OrderResult{
		OrderID:  resp.OrderID,
		ClientID: resp.ClientOrderID,
		Status:   resp.Status,
	}, nil
}

func orderParams(req common.OrderRequest) url.Values {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", strings.ToUpper(string(req.Type)))
	if req.Qty > 0 && !req.ClosePosition {
		params.Set("quantity", formatFloat(req.Qty))
	}

	switch req.Type {
	case common.OrderTypeLimit:
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", string(toBinanceTIF(req.TimeInForce)))
	case common.OrderTypeStop, common.OrderTypeTakeProfit:
		params.Set("price", formatFloat(req.Price))
		params.Set("stopPrice", formatFloat(req.StopPrice))
		params.Set("timeInForce", string(toBinanceTIF(req.TimeInForce)))
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		params.Set("stopPrice", formatFloat(req.StopPrice))
		if req.ClosePosition {
			params.Set("closePosition", "true")
		}
	case common.OrderTypeTrailingStop:
		params.Set("callbackRate", formatFloat(req.CallbackRate))
		if req.ActivationPrice > 0 {
			params.Set("activationPrice", formatFloat(req.ActivationPrice))
		}
	}
	if req.Type.IsConditional() && req.WorkingType != "" {
		params.Set("workingType", string(req.WorkingType))
	}

	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	hedge := req.PositionSide == common.PositionSideLong || req.PositionSide == common.PositionSideShort
	if req.PositionSide != "" {
		params.Set("positionSide", string(req.PositionSide))
	}
	// The exchange rejects reduceOnly in hedge mode and with closePosition.
	// Hedge-mode stops come back from openOrders with reduceOnly unset, so
	// state.HedgeClose classifies them from side and positionSide.
	if req.ReduceOnly && !hedge && !req.ClosePosition {
		params.Set("reduceOnly", "true")
	}
	return params
}

// CancelOrder cancels an order by symbol and ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return errors.Wrapf(err, "cancel %s #%d", symbol, orderID)
}

// CancelAllOpenOrders cancels all open orders for a symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	_, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params)
	return errors.Wrapf(err, "cancel all %s", symbol)
}

// OpenOrders returns open orders; symbol optional.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/openOrders", params)
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := decode(body, &orders, "open orders"); err != nil {
		return nil, err
	}
	return orders, nil
}

// AllOrders returns order history for a symbol, newest last.
func (c *Client) AllOrders(ctx context.Context, symbol string, limit int) ([]Order, error) {
	if symbol == "" {
		return nil, errors.New("all orders: symbol required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/allOrders", params)
	if err != nil {
		return nil, err
	}
	var orders []Order
	if err := decode(body, &orders, "all orders"); err != nil {
		return nil, err
	}
	return orders, nil
}
