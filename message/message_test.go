package message_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkrenaissance/darkfi-sub003/addr"
	"github.com/darkrenaissance/darkfi-sub003/message"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("hello-darkfi")
	frame, err := message.EncodeFrame(message.DefaultMagic, "ping", payload, 0)
	require.NoError(t, err)

	name, got, err := message.DecodeStream(bytes.NewReader(frame), message.DefaultMagic, 0)
	require.NoError(t, err)
	require.Equal(t, "ping", name)
	require.Equal(t, payload, got)
}

func TestFrameBadMagic(t *testing.T) {
	payload := []byte("x")
	frame, err := message.EncodeFrame(message.DefaultMagic, "ping", payload, 0)
	require.NoError(t, err)

	otherMagic := message.Magic{0, 0, 0, 0}
	_, _, err = message.DecodeStream(bytes.NewReader(frame), otherMagic, 0)
	require.Error(t, err)

	var codecErr *message.CodecError
	require.ErrorAs(t, err, &codecErr)
	require.Equal(t, message.KindBadMagic, codecErr.Kind)
}

func TestFrameOversizePayload(t *testing.T) {
	payload := make([]byte, 100)
	_, err := message.EncodeFrame(message.DefaultMagic, "ping", payload, 10)

	var codecErr *message.CodecError
	require.ErrorAs(t, err, &codecErr)
	require.Equal(t, message.KindOversizePayload, codecErr.Kind)
}

func TestFrameBadChecksum(t *testing.T) {
	frame, err := message.EncodeFrame(message.DefaultMagic, "ping", []byte("x"), 0)
	require.NoError(t, err)

	// Corrupt the payload byte without touching the checksum field.
	frame[len(frame)-1] ^= 0xff

	_, _, err = message.DecodeStream(bytes.NewReader(frame), message.DefaultMagic, 0)
	var codecErr *message.CodecError
	require.ErrorAs(t, err, &codecErr)
	require.Equal(t, message.KindBadChecksum, codecErr.Kind)
}

func TestTypedRoundTrip(t *testing.T) {
	a1, err := addr.New(addr.SchemeTCP, "10.0.0.1", 8551)
	require.NoError(t, err)
	a2, err := addr.New(addr.SchemeTor, "abc.onion", 9001)
	require.NoError(t, err)

	msgs := []message.Message{
		&message.Version{
			ProtocolVersion: 1,
			NodeID:          "node-1",
			UserAgent:       "darkfi/0.1",
			Services:        7,
			Timestamp:       1690000000,
			Nonce:           0xdeadbeef,
			ListeningAddrs:  []addr.Address{a1, a2},
		},
		&message.Verack{},
		&message.Ping{Cookie: 42},
		&message.Pong{Cookie: 42},
		&message.GetAddr{Max: 10, Transports: []string{"tcp", "tor"}},
		&message.Addr{Entries: []addr.Address{a1, a2}},
	}

	for _, m := range msgs {
		t.Run(m.Command(), func(t *testing.T) {
			payload, err := message.Serialize(m)
			require.NoError(t, err)

			got, err := message.Deserialize(m.Command(), payload)
			require.NoError(t, err)
			require.Equal(t, m, got)
		})
	}
}

func TestEncodeReadTypedRoundTrip(t *testing.T) {
	ping := &message.Ping{Cookie: 7}
	frame, err := message.Encode(message.DefaultMagic, ping, 0)
	require.NoError(t, err)

	got, err := message.ReadTyped(bytes.NewReader(frame), message.DefaultMagic, 0)
	require.NoError(t, err)
	require.Equal(t, ping, got)
}

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 2, -2, 1<<40 - 1, -(1 << 40)}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, message.WriteVarint(&buf, v))

		r := bytes.NewReader(buf.Bytes())
		got, err := message.ReadVarint(r)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}
