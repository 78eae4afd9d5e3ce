// Package frame implements the binary wire format: DATA and ACK frames with a
// fixed 9-byte prefix and a MsgPack envelope carrying the method invocation.
package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type Kind byte

const (
	KindData Kind = 0x00
	KindAck  Kind = 0x01
)

const prefixLen = 9

// MalformedError reports an undecodable frame. Malformed frames are dropped
// by the transport without a reply.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed frame: " + e.Reason
}

func malformed(format string, v ...interface{}) error {
	return &MalformedError{Reason: fmt.Sprintf(format, v...)}
}

// DataFrame is a decoded DATA frame. Payload holds the envelope payload bytes:
// the raw byte string when the client sent one, otherwise the MsgPack encoding
// of the payload map. The handler decides how to re-decode it.
type DataFrame struct {
	MsgID   uint64
	Method  string
	Payload []byte
}

// AckFrame acknowledges receipt of the DATA frame with the same MsgID.
type AckFrame struct {
	MsgID uint64
}

// envelope mirrors the wire map {method, payload, id}. The inner id is
// redundant with the frame msgId and tolerated for compatibility.
type envelope struct {
	Method  msgpack.RawMessage `msgpack:"method"`
	Payload msgpack.RawMessage `msgpack:"payload"`
	ID      uint32             `msgpack:"id"`
}

type wireEnvelope struct {
	Method  string `msgpack:"method"`
	Payload []byte `msgpack:"payload"`
	ID      uint32 `msgpack:"id"`
}

// EncodeData builds 0x00 | msgId(8 LE) | envelope.
func EncodeData(msgID uint64, method string, payload []byte) ([]byte, error) {
	env, err := msgpack.Marshal(&wireEnvelope{
		Method:  method,
		Payload: payload,
		ID:      uint32(msgID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	buf := make([]byte, prefixLen, prefixLen+len(env))
	buf[0] = byte(KindData)
	binary.LittleEndian.PutUint64(buf[1:prefixLen], msgID)
	return append(buf, env...), nil
}

// EncodeAck builds 0x01 | msgId(8 LE).
func EncodeAck(msgID uint64) []byte {
	buf := make([]byte, prefixLen)
	buf[0] = byte(KindAck)
	binary.LittleEndian.PutUint64(buf[1:prefixLen], msgID)
	return buf
}

// Decode parses a frame. It is total: every failure is a *MalformedError.
func Decode(data []byte) (interface{}, error) {
	if len(data) < prefixLen {
		return nil, malformed("short buffer, got %d bytes, need at least %d", len(data), prefixLen)
	}

	msgID := binary.LittleEndian.Uint64(data[1:prefixLen])

	switch Kind(data[0]) {
	case KindAck:
		if len(data) != prefixLen {
			return nil, malformed("ACK frame with %d trailing bytes", len(data)-prefixLen)
		}
		return &AckFrame{MsgID: msgID}, nil
	case KindData:
		method, payload, err := decodeEnvelope(data[prefixLen:])
		if err != nil {
			return nil, err
		}
		return &DataFrame{MsgID: msgID, Method: method, Payload: payload}, nil
	default:
		return nil, malformed("unknown frame prefix 0x%02x", data[0])
	}
}

func decodeEnvelope(data []byte) (string, []byte, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return "", nil, malformed("envelope parse failure: %v", err)
	}

	var method string
	if err := msgpack.Unmarshal(env.Method, &method); err != nil {
		return "", nil, malformed("method field is not a string")
	}
	if method == "" {
		return "", nil, malformed("method field is empty")
	}

	payload, err := rawPayloadBytes(env.Payload)
	if err != nil {
		return "", nil, err
	}
	return method, payload, nil
}

// rawPayloadBytes exposes a bin/str payload as its raw bytes and any other
// payload value as its MsgPack encoding.
func rawPayloadBytes(raw msgpack.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if isBinOrStr(raw[0]) {
		var b []byte
		if err := msgpack.Unmarshal(raw, &b); err != nil {
			return nil, malformed("payload byte string parse failure: %v", err)
		}
		return b, nil
	}
	return []byte(raw), nil
}

func isBinOrStr(c byte) bool {
	switch {
	case c >= 0xa0 && c <= 0xbf: // fixstr
		return true
	case c == 0xc4 || c == 0xc5 || c == 0xc6: // bin 8/16/32
		return true
	case c == 0xd9 || c == 0xda || c == 0xdb: // str 8/16/32
		return true
	}
	return false
}
