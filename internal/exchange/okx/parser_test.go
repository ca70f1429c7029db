package okx

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"okx-connector/internal/core"
)

var testRecv = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func decodeData(t *testing.T, raw string) []core.Msg {
	t.Helper()
	kind, f, err := decodeFrame([]byte(raw))
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}
	if kind != frameData {
		t.Fatalf("decodeFrame() kind = %v, want data", kind)
	}
	msgs, err := parsePush(f, testRecv)
	if err != nil {
		t.Fatalf("parsePush() error = %v", err)
	}
	return msgs
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseBooksZeroFillsMissingLevels(t *testing.T) {
	raw := `{"arg":{"channel":"books5","instId":"BTC-USDT-SWAP"},"data":[{
		"asks":[["100.5","1","0","2"],["100.6","2","0","1"],["100.7","3","0","1"]],
		"bids":[["100.4","1","0","1"],["100.3","2","0","1"],["100.2","3","0","1"],["100.1","4","0","1"],["100.0","5","0","1"]],
		"instId":"BTC-USDT-SWAP","ts":"1709294400123"}]}`
	msgs := decodeData(t, raw)
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	d, ok := msgs[0].(core.Depth)
	if !ok {
		t.Fatalf("msg = %T, want core.Depth", msgs[0])
	}
	if d.Inst.Type != core.Swap() || d.Inst.Base != "BTC" || d.Inst.Quote != "USDT" {
		t.Fatalf("Inst = %+v", d.Inst)
	}
	if !d.Asks[2].Price.Equal(dec("100.7")) || !d.Asks[2].Size.Equal(dec("3")) {
		t.Fatalf("Asks[2] = %+v", d.Asks[2])
	}
	for i := 3; i < core.DepthLevels; i++ {
		if !d.Asks[i].Price.IsZero() || !d.Asks[i].Size.IsZero() {
			t.Fatalf("Asks[%d] = %+v, want zero level", i, d.Asks[i])
		}
	}
	for i := 0; i < core.DepthLevels; i++ {
		if d.Bids[i].Price.IsZero() || d.Bids[i].Size.IsZero() {
			t.Fatalf("Bids[%d] = %+v, want populated level", i, d.Bids[i])
		}
	}
	if !d.ExchTime.Equal(time.UnixMilli(1709294400123)) {
		t.Fatalf("ExchTime = %v", d.ExchTime)
	}
	if !d.RecvTime.Equal(testRecv) {
		t.Fatalf("RecvTime = %v, want %v", d.RecvTime, testRecv)
	}
}

func TestParseBooksTruncatesExtraLevels(t *testing.T) {
	raw := `{"arg":{"channel":"books5","instId":"ETH-USDT"},"data":[{
		"asks":[["1","1"],["2","1"],["3","1"],["4","1"],["5","1"],["6","1"]],
		"bids":[],"ts":"1"}]}`
	d := decodeData(t, raw)[0].(core.Depth)
	if !d.Asks[4].Price.Equal(dec("5")) {
		t.Fatalf("Asks[4] = %+v, want price 5", d.Asks[4])
	}
	if d.Inst.Base != "ETH" || d.Inst.Type != core.Spot() {
		t.Fatalf("Inst = %+v, want ETH spot from arg", d.Inst)
	}
}

func TestParseTradesAndTickers(t *testing.T) {
	trades := decodeData(t, `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","tradeId":"1","px":"42000.1","sz":"0.01","side":"sell","ts":"1709294400000"}]}`)
	tr := trades[0].(core.Trade)
	if tr.Side != core.Sell || !tr.Price.Equal(dec("42000.1")) || !tr.Size.Equal(dec("0.01")) {
		t.Fatalf("Trade = %+v", tr)
	}

	tickers := decodeData(t, `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[
		{"instType":"SPOT","instId":"BTC-USDT","last":"42000","lastSz":"0.1","askPx":"42000.5","askSz":"2","bidPx":"41999.5","bidSz":"3","ts":"1709294400000"}]}`)
	tk := tickers[0].(core.Ticker)
	if !tk.AskPrice.Equal(dec("42000.5")) || !tk.BidSize.Equal(dec("3")) || !tk.Last.Equal(dec("42000")) {
		t.Fatalf("Ticker = %+v", tk)
	}
}

func TestParseFundingAndOpenInterest(t *testing.T) {
	funding := decodeData(t, `{"arg":{"channel":"funding-rate","instId":"BTC-USD-SWAP"},"data":[
		{"instType":"SWAP","instId":"BTC-USD-SWAP","fundingRate":"0.0001","nextFundingRate":"","fundingTime":"1709308800000","nextFundingTime":"1709337600000"}]}`)
	fr := funding[0].(core.FundingRate)
	if !fr.FundingRate.Equal(dec("0.0001")) || !fr.NextFundingRate.IsZero() {
		t.Fatalf("FundingRate = %+v", fr)
	}
	if fr.NextFundingTime.Sub(fr.FundingTime) != 8*time.Hour {
		t.Fatalf("funding interval = %v, want 8h", fr.NextFundingTime.Sub(fr.FundingTime))
	}

	oi := decodeData(t, `{"arg":{"channel":"open-interest","instId":"BTC-USD-SWAP"},"data":[
		{"instType":"SWAP","instId":"BTC-USD-SWAP","oi":"5000","oiCcy":"555.5","ts":"1709294400000"}]}`)
	o := oi[0].(core.OpenInterest)
	if !o.OI.Equal(dec("5000")) || !o.OICcy.Equal(dec("555.5")) {
		t.Fatalf("OpenInterest = %+v", o)
	}
}

func TestParseOrders(t *testing.T) {
	msgs := decodeData(t, `{"arg":{"channel":"orders","instType":"SWAP"},"data":[{
		"instType":"SWAP","instId":"BTC-USDT-SWAP","ordId":"312269865356374016","clOrdId":"42",
		"px":"41000","sz":"2","notionalUsd":"820","ordType":"limit","side":"buy",
		"fillPx":"41000","fillSz":"1","accFillSz":"1","avgPx":"41000","state":"partially_filled",
		"lever":"5","fee":"-0.02","cTime":"1709294400000","uTime":"1709294401000"}]}`)
	rep := msgs[0].(core.ExecutionReport)
	if rep.CorrelationID != 42 || rep.OrderID != "312269865356374016" {
		t.Fatalf("ids = %d/%q", rep.CorrelationID, rep.OrderID)
	}
	if rep.State != core.OrdPartiallyFilled || rep.Side != core.Buy || rep.OrdType != core.Limit {
		t.Fatalf("ExecutionReport = %+v", rep)
	}
	if !rep.Fee.Equal(dec("-0.02")) || !rep.Leverage.Equal(dec("5")) || !rep.CumFillSize.Equal(dec("1")) {
		t.Fatalf("ExecutionReport numerics = %+v", rep)
	}
	if rep.UpdateTime.Sub(rep.CreateTime) != time.Second {
		t.Fatalf("uTime - cTime = %v, want 1s", rep.UpdateTime.Sub(rep.CreateTime))
	}
}

func TestParseOrdersForeignClientID(t *testing.T) {
	msgs := decodeData(t, `{"arg":{"channel":"orders","instType":"SPOT"},"data":[{
		"instType":"SPOT","instId":"BTC-USDT","ordId":"1","clOrdId":"manual","ordType":"market",
		"side":"sell","state":"filled","cTime":"1","uTime":"2"}]}`)
	rep := msgs[0].(core.ExecutionReport)
	if rep.CorrelationID != 0 {
		t.Fatalf("CorrelationID = %d, want 0", rep.CorrelationID)
	}
	if !rep.State.Terminal() {
		t.Fatalf("State = %v, want terminal", rep.State)
	}
}

func TestParseBalanceAndPosition(t *testing.T) {
	msgs := decodeData(t, `{"arg":{"channel":"balance_and_position"},"data":[{
		"pTime":"1709294400000","eventType":"snapshot",
		"balData":[{"ccy":"USDT","cashBal":"1000.5","uTime":"1709294399000"},{"ccy":"BTC","cashBal":"0.1","uTime":""}],
		"posData":[{"instType":"MARGIN","instId":"BTC-USDT","mgnMode":"cross","pos":"0.5","ccy":"USDT","posCcy":"BTC","avgPx":"40000","uTime":""}]}]}`)
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}
	usdt := msgs[0].(core.BalanceReport)
	if usdt.Ccy != "USDT" || !usdt.CashBalance.Equal(dec("1000.5")) || usdt.Exch != core.Okx {
		t.Fatalf("BalanceReport = %+v", usdt)
	}
	btc := msgs[1].(core.BalanceReport)
	if !btc.UpdateTime.Equal(time.UnixMilli(1709294400000)) {
		t.Fatalf("BalanceReport.UpdateTime = %v, want pTime", btc.UpdateTime)
	}
	pos := msgs[2].(core.PositionReport)
	if pos.Inst.Type.Kind != core.KindMargin || pos.MgnMode != core.MgnCross {
		t.Fatalf("PositionReport = %+v", pos)
	}
	if pos.MarginCcy != "USDT" || pos.PositionCcy != "BTC" || !pos.Position.Equal(dec("0.5")) {
		t.Fatalf("PositionReport = %+v", pos)
	}
}

func TestParsePushRejectsMalformedRows(t *testing.T) {
	cases := []string{
		`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","px":"x","sz":"1","side":"buy","ts":"1"}]}`,
		`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","px":"1","sz":"1","side":"hold","ts":"1"}]}`,
		`{"arg":{"channel":"books5","instId":"BTC-USDT"},"data":[{"asks":[["1"]],"bids":[],"ts":"1"}]}`,
		`{"arg":{"channel":"orders","instType":"SPOT"},"data":[{"instId":"BTC-USDT","side":"buy","ordType":"limit","state":"weird"}]}`,
		`{"arg":{"channel":"mystery","instId":"BTC-USDT"},"data":[{}]}`,
	}
	for _, raw := range cases {
		_, f, err := decodeFrame([]byte(raw))
		if err != nil {
			t.Fatalf("decodeFrame() error = %v", err)
		}
		if _, err := parsePush(f, testRecv); err == nil {
			t.Fatalf("parsePush(%s) error = nil", raw)
		}
	}
}

func TestDecodeFrameKinds(t *testing.T) {
	cases := []struct {
		raw  string
		want frameKind
	}{
		{"pong", framePong},
		{`{"event":"login","code":"0","msg":"","connId":"a4d3ae55"}`, frameLogin},
		{`{"event":"error","code":"60009","msg":"Login failed."}`, frameError},
		{`{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`, frameSubscribe},
		{`{"event":"notice","code":"64008","msg":"service upgrade"}`, frameNotice},
		{`{"id":"1512","op":"order","code":"0","msg":"","data":[{"clOrdId":"42","ordId":"1","sCode":"0","sMsg":""}]}`, frameAck},
		{`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"px":"1"}]}`, frameData},
		{`{"foo":"bar"}`, frameUnknown},
	}
	for _, tc := range cases {
		got, _, err := decodeFrame([]byte(tc.raw))
		if err != nil {
			t.Fatalf("decodeFrame(%s) error = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("decodeFrame(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	if _, _, err := decodeFrame([]byte("  ")); err == nil {
		t.Fatalf("decodeFrame(blank) error = nil")
	}
	if _, _, err := decodeFrame([]byte("{not json")); err == nil {
		t.Fatalf("decodeFrame(garbage) error = nil")
	}
}
