package okx

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"okx-connector/internal/bus"
	"okx-connector/internal/core"
)

func TestPublicClientStreamsUntilDisconnect(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		sub, ok := readRequest(t, conn)
		if !ok || sub.Op != opSubscribe || len(sub.Args) != 2 {
			t.Errorf("request = %+v, want subscribe with 2 args", sub)
			return
		}
		var first wsArg
		_ = json.Unmarshal(sub.Args[0], &first)
		if first != (wsArg{Channel: channelBooks5, InstID: "BTC-USDT-SWAP"}) {
			t.Errorf("first arg = %+v", first)
		}
		writeText(conn, `{"event":"subscribe","arg":{"channel":"books5","instId":"BTC-USDT-SWAP"}}`)
		writeText(conn, `{"event":"error","code":"60018","msg":"Wrong URL or channel"}`)
		writeText(conn, `{garbage`)
		writeText(conn, `{"arg":{"channel":"trades","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","px":"bad","sz":"1","side":"buy","ts":"1"}]}`)
		writeText(conn, `{"arg":{"channel":"books5","instId":"BTC-USDT-SWAP"},"data":[{"asks":[["1","1"]],"bids":[["0.9","2"]],"ts":"1709294400000"}]}`)
		writeText(conn, `{"arg":{"channel":"trades","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","px":"1","sz":"3","side":"buy","ts":"1709294400001"}]}`)
	})

	swap := core.MustInstrument("Okx.BTC.USDT.Swap")
	client := NewPublicClient(PublicOptions{
		URL: url,
		Subscriptions: []core.Subscription{
			{Inst: swap, Data: core.DataTrade},
			{Inst: swap, Data: core.DataDepth},
		},
	})
	tx, rx := bus.New(16)
	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background(), tx) }()

	if d, ok := recvMsg(t, rx).(core.Depth); !ok || d.Inst != swap || !d.Bids[0].Size.Equal(dec("2")) {
		t.Fatalf("first event = %+v, want depth", d)
	}
	if tr, ok := recvMsg(t, rx).(core.Trade); !ok || !tr.Size.Equal(dec("3")) {
		t.Fatalf("second event = %+v, want trade", tr)
	}
	err := waitErr(t, done)
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want transport error", err)
	}
	if rx.Len() != 0 {
		t.Fatalf("bus holds %d extra messages", rx.Len())
	}
	if client.State() != StateDisconnected {
		t.Fatalf("State() = %v, want disconnected", client.State())
	}
}

func TestPublicClientKeepalive(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		if _, ok := readRequest(t, conn); !ok {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == pingPayload {
				break
			}
		}
		writeText(conn, "pong")
		writeText(conn, `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instType":"SPOT","instId":"BTC-USDT","last":"1","ts":"1"}]}`)
		drain(conn)
	})
	client := NewPublicClient(PublicOptions{
		URL:           url,
		Subscriptions: []core.Subscription{{Inst: core.MustInstrument("Okx.BTC.USDT.Spot"), Data: core.DataTicker}},
		PingInterval:  50 * time.Millisecond,
	})
	tx, rx := bus.New(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, tx) }()

	if _, ok := recvMsg(t, rx).(core.Ticker); !ok {
		t.Fatalf("want ticker after keepalive")
	}
	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestPublicClientStopsWhenBusCloses(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		if _, ok := readRequest(t, conn); !ok {
			return
		}
		writeText(conn, `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instType":"SPOT","instId":"BTC-USDT","last":"1","ts":"1"}]}`)
		drain(conn)
	})
	client := NewPublicClient(PublicOptions{
		URL:           url,
		Subscriptions: []core.Subscription{{Inst: core.MustInstrument("Okx.BTC.USDT.Spot"), Data: core.DataTicker}},
	})
	tx, rx := bus.New(4)
	rx.Close()
	if err := client.Run(context.Background(), tx); !errors.Is(err, bus.ErrClosed) {
		t.Fatalf("Run() error = %v, want bus.ErrClosed", err)
	}
}

func TestPublicClientNeedsSubscriptions(t *testing.T) {
	client := NewPublicClient(PublicOptions{URL: "ws://127.0.0.1:1"})
	tx, _ := bus.New(1)
	if err := client.Run(context.Background(), tx); !errors.Is(err, errNoSubscriptions) {
		t.Fatalf("Run() error = %v, want errNoSubscriptions", err)
	}
}

func TestPublicClientReportsMarginSubscriptionsAsMargin(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		if _, ok := readRequest(t, conn); !ok {
			return
		}
		writeText(conn, `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","px":"1","sz":"3","side":"sell","ts":"1709294400001"}]}`)
		writeText(conn, `{"arg":{"channel":"books5","instId":"ETH-USDT"},"data":[{"asks":[["1","1"]],"bids":[["0.9","2"]],"ts":"1709294400000"}]}`)
		drain(conn)
	})

	margin := core.MustInstrument("Okx.BTC.USDT.Margin")
	ethSpot := core.MustInstrument("Okx.ETH.USDT.Spot")
	client := NewPublicClient(PublicOptions{
		URL: url,
		Subscriptions: []core.Subscription{
			{Inst: margin, Data: core.DataTrade},
			{Inst: ethSpot, Data: core.DataDepth},
		},
	})
	tx, rx := bus.New(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx, tx) }()

	if tr, ok := recvMsg(t, rx).(core.Trade); !ok || tr.Inst != margin {
		t.Fatalf("first event = %+v, want trade on %v", tr, margin)
	}
	if d, ok := recvMsg(t, rx).(core.Depth); !ok || d.Inst != ethSpot {
		t.Fatalf("second event = %+v, want depth on %v", d, ethSpot)
	}
	cancel()
	waitErr(t, done)
}

func TestPublicRetagSpotAndMarginOnSameTopic(t *testing.T) {
	spot := core.MustInstrument("Okx.BTC.USDT.Spot")
	margin := core.MustInstrument("Okx.BTC.USDT.Margin")
	client := NewPublicClient(PublicOptions{Subscriptions: []core.Subscription{
		{Inst: margin, Data: core.DataTicker},
		{Inst: spot, Data: core.DataTicker},
	}})

	out := client.retag(channelTickers, []core.Msg{core.Ticker{Inst: spot, Last: dec("5")}})
	if len(out) != 2 {
		t.Fatalf("retag() = %d events, want 2", len(out))
	}
	if out[0].(core.Ticker).Inst != spot || out[1].(core.Ticker).Inst != margin {
		t.Fatalf("retag() = %+v, want spot then margin", out)
	}
	if !out[1].(core.Ticker).Last.Equal(dec("5")) {
		t.Fatalf("retag() lost payload: %+v", out[1])
	}

	other := client.retag(channelTrades, []core.Msg{core.Trade{Inst: spot}})
	if len(other) != 1 || other[0].(core.Trade).Inst != spot {
		t.Fatalf("retag() on unsubscribed channel = %+v", other)
	}
}
