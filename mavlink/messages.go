package mavlink

import (
	"encoding/binary"
	"fmt"
)

const (
	HeartbeatID       uint32 = 0
	DefaultRfdTestID  uint32 = 42000
	RfdTestName              = "RFD_TEST"
	RfdTestFieldValue        = "RANDOM_DEGER"
)

// Heartbeat is common.xml HEARTBEAT, peer liveness.
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

var HeartbeatDefinition = NewDefinition(HeartbeatID, "HEARTBEAT", []Field{
	{Type: "uint32_t", Name: "custom_mode"},
	{Type: "uint8_t", Name: "type"},
	{Type: "uint8_t", Name: "autopilot"},
	{Type: "uint8_t", Name: "base_mode"},
	{Type: "uint8_t", Name: "system_status"},
	{Type: "uint8_t_mavlink_version", Name: "mavlink_version"},
}, func() Message { return &Heartbeat{} })

func (*Heartbeat) ID() uint32   { return HeartbeatID }
func (*Heartbeat) Name() string { return "HEARTBEAT" }
func (m *Heartbeat) String() string {
	return fmt.Sprintf("HEARTBEAT(type=%d autopilot=%d base_mode=%d custom_mode=%d status=%d version=%d)",
		m.Type, m.Autopilot, m.BaseMode, m.CustomMode, m.SystemStatus, m.MavlinkVersion)
}

func (m *Heartbeat) MarshalPayload() []byte {
	b := make([]byte, 9)
	binary.LittleEndian.PutUint32(b[0:], m.CustomMode)
	b[4] = m.Type
	b[5] = m.Autopilot
	b[6] = m.BaseMode
	b[7] = m.SystemStatus
	b[8] = m.MavlinkVersion
	return b
}

func (m *Heartbeat) UnmarshalPayload(b []byte) error {
	if len(b) < 9 {
		return ErrFrameInvalid
	}
	m.CustomMode = binary.LittleEndian.Uint32(b[0:])
	m.Type, m.Autopilot, m.BaseMode, m.SystemStatus, m.MavlinkVersion = b[4], b[5], b[6], b[7], b[8]
	return nil
}

// RfdTest is custom radio test status message with single wrapping counter field.
// Message id is not fixed by any public dialect, so it travels with the value.
type RfdTest struct {
	MsgID       uint32
	RandomDeger uint8
}

func RfdTestDefinition(id uint32) *Definition {
	return NewDefinition(id, RfdTestName, []Field{
		{Type: "uint8_t", Name: RfdTestFieldValue},
	}, func() Message { return &RfdTest{MsgID: id} })
}

func (m *RfdTest) ID() uint32 { return m.MsgID }
func (*RfdTest) Name() string { return RfdTestName }
func (m *RfdTest) String() string {
	return fmt.Sprintf("%s(id=%d %s=%d)", RfdTestName, m.MsgID, RfdTestFieldValue, m.RandomDeger)
}

func (m *RfdTest) MarshalPayload() []byte { return []byte{m.RandomDeger} }

func (m *RfdTest) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return ErrFrameInvalid
	}
	m.RandomDeger = b[0]
	return nil
}

var (
	_ Message = (*Heartbeat)(nil)
	_ Message = (*RfdTest)(nil)
)

// NewDialect for link tool: HEARTBEAT and RFD_TEST with given id.
func NewLinkDialect(rfdTestID uint32) (*Dialect, error) {
	return NewDialect(HeartbeatDefinition, RfdTestDefinition(rfdTestID))
}
