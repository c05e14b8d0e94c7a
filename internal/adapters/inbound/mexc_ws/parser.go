package mexc_ws

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/charleschow/listing-sniper/internal/telemetry"
)

const dealsChannel = "spot@public.deals.v3.api"

// DealsTopic is the public trade stream for one symbol.
func DealsTopic(symbol string) string {
	return dealsChannel + "@" + strings.ToUpper(symbol)
}

type FrameKind int

const (
	FrameOther FrameKind = iota
	FrameTrade
	FrameAck
	FramePong
	FrameError
)

// Frame is the parsed view of one server message.
type Frame struct {
	Kind    FrameKind
	Symbol  string
	TradeAt time.Time // exchange timestamp of the first deal in the frame
	Msg     string
}

// wsMessage covers the deals push, the subscription/PING acks and the
// legacy {"e":"trade"} stream shape.
type wsMessage struct {
	Channel string    `json:"c"`
	Symbol  string    `json:"s"`
	Time    int64     `json:"t"`
	Data    *dealData `json:"d"`

	ID   *int   `json:"id"`
	Code *int   `json:"code"`
	Msg  string `json:"msg"`

	Event     string `json:"e"`
	TradeTime int64  `json:"T"`
}

type dealData struct {
	Deals []deal `json:"deals"`
	Event string `json:"e"`
}

type deal struct {
	Price  string `json:"p"`
	Volume string `json:"v"`
	Side   int    `json:"S"`
	Time   int64  `json:"t"`
}

// ParseMessage classifies a raw frame.
func ParseMessage(data []byte) Frame {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Warnf("mexc_ws: parse error: %v", err)
		return Frame{Kind: FrameOther}
	}

	switch {
	case strings.HasPrefix(msg.Channel, dealsChannel) && msg.Data != nil && len(msg.Data.Deals) > 0:
		ts := msg.Data.Deals[0].Time
		if ts == 0 {
			ts = msg.Time
		}
		return Frame{Kind: FrameTrade, Symbol: symbolOf(msg), TradeAt: time.UnixMilli(ts)}
	case msg.Event == "trade":
		ts := msg.TradeTime
		if ts == 0 {
			ts = msg.Time
		}
		return Frame{Kind: FrameTrade, Symbol: strings.ToUpper(msg.Symbol), TradeAt: time.UnixMilli(ts)}
	case msg.Code != nil && *msg.Code != 0, strings.HasPrefix(msg.Msg, "Not Subscribed"):
		return Frame{Kind: FrameError, Msg: msg.Msg}
	case msg.Msg == "PONG":
		return Frame{Kind: FramePong}
	case msg.ID != nil || msg.Code != nil:
		return Frame{Kind: FrameAck, Msg: msg.Msg}
	}
	return Frame{Kind: FrameOther}
}

func symbolOf(msg wsMessage) string {
	if msg.Symbol != "" {
		return strings.ToUpper(msg.Symbol)
	}
	if i := strings.LastIndexByte(msg.Channel, '@'); i >= 0 {
		return strings.ToUpper(msg.Channel[i+1:])
	}
	return ""
}
