package okx

import (
	"bytes"
	"encoding/json"
	"errors"
)

type frameKind int

const (
	frameUnknown frameKind = iota
	framePong
	frameData
	frameLogin
	frameError
	frameSubscribe
	frameNotice
	frameAck
)

func (k frameKind) String() string {
	switch k {
	case framePong:
		return "pong"
	case frameData:
		return "data"
	case frameLogin:
		return "login"
	case frameError:
		return "error"
	case frameSubscribe:
		return "subscribe"
	case frameNotice:
		return "notice"
	case frameAck:
		return "ack"
	}
	return "unknown"
}

var errEmptyFrame = errors.New("empty frame")

// decodeFrame classifies one inbound text frame.
func decodeFrame(raw []byte) (frameKind, wsFrame, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return frameUnknown, wsFrame{}, errEmptyFrame
	}
	if string(raw) == "pong" {
		return framePong, wsFrame{}, nil
	}
	var f wsFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return frameUnknown, wsFrame{}, err
	}
	switch {
	case f.Event == opLogin:
		return frameLogin, f, nil
	case f.Event == "error":
		return frameError, f, nil
	case f.Event == opSubscribe:
		return frameSubscribe, f, nil
	case f.Event != "":
		return frameNotice, f, nil
	case f.ID != "" && f.Op != "":
		return frameAck, f, nil
	case f.Arg != nil && f.Arg.Channel != "" && len(f.Data) > 0:
		return frameData, f, nil
	}
	return frameUnknown, f, nil
}
