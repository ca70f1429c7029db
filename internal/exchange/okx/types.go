package okx

import "encoding/json"

// Channel names.
const (
	channelBooks5             = "books5"
	channelTrades             = "trades"
	channelTickers            = "tickers"
	channelFundingRate        = "funding-rate"
	channelOpenInterest       = "open-interest"
	channelOrders             = "orders"
	channelPositions          = "positions"
	channelBalanceAndPosition = "balance_and_position"
)

// Operations.
const (
	opLogin       = "login"
	opSubscribe   = "subscribe"
	opOrder       = "order"
	opCancelOrder = "cancel-order"
)

const codeOK = "0"

type wsArg struct {
	Channel  string `json:"channel"`
	InstType string `json:"instType,omitempty"`
	InstID   string `json:"instId,omitempty"`
}

type wsRequest struct {
	ID   string        `json:"id,omitempty"`
	Op   string        `json:"op"`
	Args []interface{} `json:"args"`
}

type loginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type orderArg struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	ClOrdID string `json:"clOrdId,omitempty"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Px      string `json:"px,omitempty"`
	Sz      string `json:"sz"`
}

type cancelArg struct {
	ClOrdID string `json:"clOrdId"`
	InstID  string `json:"instId"`
}

// wsFrame is the union of every inbound frame shape; which fields are set
// decides the frame kind.
type wsFrame struct {
	Event  string          `json:"event"`
	Code   string          `json:"code"`
	Msg    string          `json:"msg"`
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	ConnID string          `json:"connId"`
	Arg    *wsArg          `json:"arg"`
	Data   json.RawMessage `json:"data"`
}

type resultRow struct {
	ClOrdID string `json:"clOrdId"`
	OrdID   string `json:"ordId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type restResponse struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data []resultRow `json:"data"`
}

type bookRow struct {
	InstID string     `json:"instId"`
	Asks   [][]string `json:"asks"`
	Bids   [][]string `json:"bids"`
	Ts     string     `json:"ts"`
}

type tradeRow struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

type tickerRow struct {
	InstType string `json:"instType"`
	InstID   string `json:"instId"`
	Last     string `json:"last"`
	LastSz   string `json:"lastSz"`
	AskPx    string `json:"askPx"`
	AskSz    string `json:"askSz"`
	BidPx    string `json:"bidPx"`
	BidSz    string `json:"bidSz"`
	Ts       string `json:"ts"`
}

type fundingRateRow struct {
	InstType        string `json:"instType"`
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	NextFundingRate string `json:"nextFundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

type openInterestRow struct {
	InstType string `json:"instType"`
	InstID   string `json:"instId"`
	Oi       string `json:"oi"`
	OiCcy    string `json:"oiCcy"`
	Ts       string `json:"ts"`
}

type orderRow struct {
	InstType    string `json:"instType"`
	InstID      string `json:"instId"`
	OrdID       string `json:"ordId"`
	ClOrdID     string `json:"clOrdId"`
	Px          string `json:"px"`
	Sz          string `json:"sz"`
	NotionalUsd string `json:"notionalUsd"`
	OrdType     string `json:"ordType"`
	Side        string `json:"side"`
	FillPx      string `json:"fillPx"`
	FillSz      string `json:"fillSz"`
	AccFillSz   string `json:"accFillSz"`
	AvgPx       string `json:"avgPx"`
	State       string `json:"state"`
	Lever       string `json:"lever"`
	Fee         string `json:"fee"`
	CTime       string `json:"cTime"`
	UTime       string `json:"uTime"`
}

type positionRow struct {
	InstType string `json:"instType"`
	InstID   string `json:"instId"`
	MgnMode  string `json:"mgnMode"`
	Pos      string `json:"pos"`
	Ccy      string `json:"ccy"`
	PosCcy   string `json:"posCcy"`
	AvgPx    string `json:"avgPx"`
	UTime    string `json:"uTime"`
}

type balanceRow struct {
	Ccy     string `json:"ccy"`
	CashBal string `json:"cashBal"`
	UTime   string `json:"uTime"`
}

type balanceAndPositionRow struct {
	PTime     string        `json:"pTime"`
	EventType string        `json:"eventType"`
	BalData   []balanceRow  `json:"balData"`
	PosData   []positionRow `json:"posData"`
}
