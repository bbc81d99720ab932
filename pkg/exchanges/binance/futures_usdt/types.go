package futures_usdt

// Wire types. The API encodes decimals as strings; the Float helpers parse them.

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

// AccountInfo is the /fapi/v2/account payload.
type AccountInfo struct {
	CanTrade              bool           `json:"canTrade"`
	UpdateTime            int64          `json:"updateTime"`
	TotalWalletBalance    string         `json:"totalWalletBalance"`
	TotalMarginBalance    string         `json:"totalMarginBalance"`
	TotalUnrealizedProfit string         `json:"totalUnrealizedProfit"`
	AvailableBalance      string         `json:"availableBalance"`
	TotalInitialMargin    string         `json:"totalInitialMargin"`
	TotalMaintMargin      string         `json:"totalMaintMargin"`
	Assets                []AccountAsset `json:"assets"`
}

type AccountAsset struct {
	Asset            string `json:"asset"`
	WalletBalance    string `json:"walletBalance"`
	UnrealizedProfit string `json:"unrealizedProfit"`
	MarginBalance    string `json:"marginBalance"`
	AvailableBalance string `json:"availableBalance"`
}

func (a AccountInfo) WalletBalance() float64    { return parseFloat(a.TotalWalletBalance) }
func (a AccountInfo) MarginBalance() float64    { return parseFloat(a.TotalMarginBalance) }
func (a AccountInfo) UnrealizedProfit() float64 { return parseFloat(a.TotalUnrealizedProfit) }
func (a AccountInfo) Available() float64        { return parseFloat(a.AvailableBalance) }

// PositionRisk is one row of /fapi/v1/positionRisk.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionSide     string `json:"positionSide"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	MarginType       string `json:"marginType"`
	IsolatedMargin   string `json:"isolatedMargin"`
	UpdateTime       int64  `json:"updateTime"`
}

func (p PositionRisk) Amount() float64     { return parseFloat(p.PositionAmt) }
func (p PositionRisk) Entry() float64      { return parseFloat(p.EntryPrice) }
func (p PositionRisk) Mark() float64       { return parseFloat(p.MarkPrice) }
func (p PositionRisk) Unrealized() float64 { return parseFloat(p.UnRealizedProfit) }
func (p PositionRisk) Isolated() float64   { return parseFloat(p.IsolatedMargin) }
func (p PositionRisk) LeverageInt() int    { return int(parseFloat(p.Leverage)) }

// Order is an open or historical order.
type Order struct {
	OrderID       int64  `json:"orderId"`
	Symbol        string `json:"symbol"`
	ClientOrderID string `json:"clientOrderId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigType      string `json:"origType"`
	Status        string `json:"status"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	StopPrice     string `json:"stopPrice"`
	ActivatePrice string `json:"activatePrice"`
	PriceRate     string `json:"priceRate"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
	PositionSide  string `json:"positionSide"`
	WorkingType   string `json:"workingType"`
	TimeInForce   string `json:"timeInForce"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
}

func (o Order) Qty() float64          { return parseFloat(o.OrigQty) }
func (o Order) Executed() float64     { return parseFloat(o.ExecutedQty) }
func (o Order) LimitPrice() float64   { return parseFloat(o.Price) }
func (o Order) Trigger() float64      { return parseFloat(o.StopPrice) }
func (o Order) Activation() float64   { return parseFloat(o.ActivatePrice) }
func (o Order) CallbackRate() float64 { return parseFloat(o.PriceRate) }

// ExchangeInfo is the subset of /fapi/v1/exchangeInfo the rule cache needs.
type ExchangeInfo struct {
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol            string         `json:"symbol"`
	Status            string         `json:"status"`
	ContractType      string         `json:"contractType"`
	QuoteAsset        string         `json:"quoteAsset"`
	PricePrecision    int            `json:"pricePrecision"`
	QuantityPrecision int            `json:"quantityPrecision"`
	Filters           []SymbolFilter `json:"filters"`
}

// SymbolFilter flattens every filter kind; unused fields stay empty.
type SymbolFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize"`
	MinPrice   string `json:"minPrice"`
	MaxPrice   string `json:"maxPrice"`
	StepSize   string `json:"stepSize"`
	MinQty     string `json:"minQty"`
	MaxQty     string `json:"maxQty"`
	Notional   string `json:"notional"`
}

// Filter returns the filter of the given type, if present.
func (s SymbolInfo) Filter(filterType string) (SymbolFilter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == filterType {
			return f, true
		}
	}
	return SymbolFilter{}, false
}

func (f SymbolFilter) Tick() float64 { return parseFloat(f.TickSize) }
func (f SymbolFilter) Step() float64 { return parseFloat(f.StepSize) }
func (f SymbolFilter) Min() float64  { return parseFloat(f.MinQty) }
func (f SymbolFilter) Max() float64  { return parseFloat(f.MaxQty) }

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}
