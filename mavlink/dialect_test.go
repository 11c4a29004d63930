package mavlink

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRCExtra(t *testing.T) {
	t.Parallel()

	// HEARTBEAT value is published in every MAVLink dialect
	assert.Equal(t, byte(50), HeartbeatDefinition.CRCExtra())
	assert.Equal(t, 9, HeartbeatDefinition.Size())

	rfd := RfdTestDefinition(DefaultRfdTestID)
	assert.Equal(t, byte(142), rfd.CRCExtra())
	assert.Equal(t, 1, rfd.Size())
	// id is not part of crc extra
	assert.Equal(t, rfd.CRCExtra(), RfdTestDefinition(180).CRCExtra())
}

func TestDialect(t *testing.T) {
	t.Parallel()

	d, err := NewLinkDialect(DefaultRfdTestID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{HeartbeatID, DefaultRfdTestID}, d.IDs())

	_, err = NewLinkDialect(HeartbeatID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id=0")

	_, err = d.Decode(&Frame{MsgID: 77})
	assert.Equal(t, ErrUnknownMessage, errors.Cause(err))

	// v2 truncated payload
	m, err := d.Decode(&Frame{MsgID: HeartbeatID, Payload: []byte{0x05}})
	require.NoError(t, err)
	assert.Equal(t, &Heartbeat{CustomMode: 5}, m)
}
