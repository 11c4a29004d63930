package mavlink

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/rfdlink/helpers"
)

func testDialect(t testing.TB) *Dialect {
	d, err := NewLinkDialect(DefaultRfdTestID)
	require.NoError(t, err)
	return d
}

func TestFrameMarshal(t *testing.T) {
	t.Parallel()

	d := testDialect(t)
	cases := []struct {
		name   string
		enc    *Encoder
		seq    int
		msg    Message
		expect string
	}{
		{"v1/heartbeat", NewEncoder(d, V1, 1, 1), 0,
			&Heartbeat{Type: 2, Autopilot: 3, BaseMode: 0x51, SystemStatus: 4, MavlinkVersion: 3},
			"fe09000101000000000002035104037ddd"},
		{"v2/rfd-test", NewEncoder(d, V2, 255, 0), 5,
			&RfdTest{MsgID: DefaultRfdTestID, RandomDeger: 7},
			"fd01000005ff0010a4000791f8"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			for i := 0; i < c.seq; i++ {
				_, err := c.enc.Encode(c.msg)
				require.NoError(t, err)
			}
			b, err := c.enc.Encode(c.msg)
			require.NoError(t, err)
			assert.Equal(t, helpers.MustHex(c.expect), b)
			assert.Equal(t, byte(c.seq+1), c.enc.Seq())
		})
	}
}

func TestFrameV2Truncate(t *testing.T) {
	t.Parallel()

	d := testDialect(t)
	enc := NewEncoder(d, V2, 255, 0)
	b, err := enc.Encode(&Heartbeat{CustomMode: 0x0100})
	require.NoError(t, err)
	// custom_mode low byte is zero but not trailing, the rest is zero
	assert.Equal(t, byte(2), b[1])

	b, err = enc.Encode(&RfdTest{MsgID: DefaultRfdTestID})
	require.NoError(t, err)
	assert.Equal(t, byte(1), b[1], "first payload byte is never truncated")

	p := NewParser(d)
	_, _ = p.Write(b)
	_, m, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, &RfdTest{MsgID: DefaultRfdTestID}, m)
}

func TestFrameErrors(t *testing.T) {
	t.Parallel()

	_, err := FrameMarshal(&Frame{Version: V1, MsgID: DefaultRfdTestID, Payload: []byte{1}}, 142)
	assert.Equal(t, ErrMessageIDRange, errors.Cause(err))
	_, err = FrameMarshal(&Frame{Version: V2, Payload: make([]byte, MaxPayload+1)}, 0)
	assert.Equal(t, ErrPayloadOverflow, err)
	_, err = FrameMarshal(&Frame{Version: 3}, 0)
	assert.Error(t, err)

	enc := NewEncoder(testDialect(t), V1, 1, 1)
	_, err = enc.Encode(&RfdTest{MsgID: DefaultRfdTestID})
	assert.Equal(t, ErrMessageIDRange, errors.Cause(err))
	assert.Equal(t, byte(0), enc.Seq(), "failed encode must not consume sequence")
}
