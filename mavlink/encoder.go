package mavlink

import (
	"github.com/juju/errors"
)

// Encoder keeps outgoing frame sequence, wraps at 256.
type Encoder struct {
	Version Version
	SysID   byte
	CompID  byte

	dialect *Dialect
	seq     byte
}

func NewEncoder(d *Dialect, v Version, sysid, compid byte) *Encoder {
	return &Encoder{Version: v, SysID: sysid, CompID: compid, dialect: d}
}

func (e *Encoder) Encode(m Message) ([]byte, error) {
	def, ok := e.dialect.Lookup(m.ID())
	if !ok {
		return nil, errors.Annotatef(ErrUnknownMessage, "encode %s msgid=%d", m.Name(), m.ID())
	}
	f := &Frame{
		Version: e.Version,
		Seq:     e.seq,
		SysID:   e.SysID,
		CompID:  e.CompID,
		MsgID:   m.ID(),
		Payload: m.MarshalPayload(),
	}
	b, err := FrameMarshal(f, def.CRCExtra())
	if err != nil {
		return nil, errors.Annotatef(err, "encode %s", m.Name())
	}
	e.seq++
	return b, nil
}

func (e *Encoder) Seq() byte { return e.seq }
