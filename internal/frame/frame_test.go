package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDataRoundTrip(t *testing.T) {
	payload := []byte(`{"symbol":"BTC-USD"}`)

	data, err := EncodeData(7, "orders.place", payload)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	df, ok := decoded.(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, uint64(7), df.MsgID)
	assert.Equal(t, "orders.place", df.Method)
	assert.Equal(t, payload, df.Payload)
}

func TestAckRoundTrip(t *testing.T) {
	decoded, err := Decode(EncodeAck(42))
	require.NoError(t, err)

	af, ok := decoded.(*AckFrame)
	require.True(t, ok)
	assert.Equal(t, uint64(42), af.MsgID)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, 8))
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
}

func TestDecodeUnknownPrefix(t *testing.T) {
	buf := EncodeAck(1)
	buf[0] = 0x02
	_, err := Decode(buf)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
}

func TestDecodeAckTrailingBytes(t *testing.T) {
	buf := append(EncodeAck(1), 0x00)
	_, err := Decode(buf)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
}

func TestDecodeEnvelopeGarbage(t *testing.T) {
	buf := append(EncodeAck(1), 0xff, 0xff)
	buf[0] = byte(KindData)
	_, err := Decode(buf)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
}

func TestDecodeNonStringMethod(t *testing.T) {
	env, err := msgpack.Marshal(map[string]interface{}{
		"method":  12345,
		"payload": []byte{},
		"id":      uint32(1),
	})
	require.NoError(t, err)

	buf := append(EncodeAck(1), env...)
	buf[0] = byte(KindData)
	_, err = Decode(buf)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
}

func TestDecodeMapPayloadExposedAsMsgPack(t *testing.T) {
	env, err := msgpack.Marshal(map[string]interface{}{
		"method":  "orders.place",
		"payload": map[string]interface{}{"qty": 2},
		"id":      uint32(3),
	})
	require.NoError(t, err)

	buf := append(EncodeAck(3), env...)
	buf[0] = byte(KindData)

	decoded, err := Decode(buf)
	require.NoError(t, err)

	df := decoded.(*DataFrame)
	var inner map[string]interface{}
	require.NoError(t, msgpack.Unmarshal(df.Payload, &inner))
	assert.EqualValues(t, 2, inner["qty"])
}
