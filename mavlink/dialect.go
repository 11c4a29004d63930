package mavlink

import (
	"fmt"
	"sort"

	"github.com/juju/errors"
	"github.com/temoto/rfdlink/crc"
)

var ErrUnknownMessage = fmt.Errorf("unknown message")

type Message interface {
	ID() uint32
	Name() string
	String() string
	MarshalPayload() []byte
	UnmarshalPayload([]byte) error
}

// Field in wire order, which for MAVLink is sorted by type size, largest first.
type Field struct {
	Type     string // C type as in XML: uint8_t, uint32_t, float
	Name     string
	ArrayLen byte
}

var typeSize = map[string]int{
	"char": 1, "int8_t": 1, "uint8_t": 1, "uint8_t_mavlink_version": 1,
	"int16_t": 2, "uint16_t": 2,
	"int32_t": 4, "uint32_t": 4, "float": 4,
	"int64_t": 8, "uint64_t": 8, "double": 8,
}

type Definition struct {
	ID     uint32
	Name   string
	Fields []Field
	New    func() Message

	crcExtra byte
	size     int
}

// NewDefinition computes CRC_EXTRA same way as MAVLink generator:
// X.25 over "NAME " then "type name " per field (plus array length byte).
func NewDefinition(id uint32, name string, fields []Field, new func() Message) *Definition {
	d := &Definition{ID: id, Name: name, Fields: fields, New: new}
	sum := crc.X25String(crc.X25Init, name+" ")
	for _, f := range fields {
		t := f.Type
		if t == "uint8_t_mavlink_version" {
			t = "uint8_t"
		}
		sum = crc.X25String(sum, t+" ")
		sum = crc.X25String(sum, f.Name+" ")
		n := 1
		if f.ArrayLen != 0 {
			sum = crc.X25Accumulate(sum, f.ArrayLen)
			n = int(f.ArrayLen)
		}
		size, ok := typeSize[f.Type]
		if !ok {
			panic(fmt.Sprintf("code error mavlink message=%s field=%s unknown type=%s", name, f.Name, f.Type))
		}
		d.size += size * n
	}
	d.crcExtra = byte(sum&0xff) ^ byte(sum>>8)
	return d
}

func (d *Definition) CRCExtra() byte { return d.crcExtra }
func (d *Definition) Size() int      { return d.size }

type Dialect struct {
	defs map[uint32]*Definition
}

func NewDialect(defs ...*Definition) (*Dialect, error) {
	d := &Dialect{defs: make(map[uint32]*Definition, len(defs))}
	for _, def := range defs {
		if prev, ok := d.defs[def.ID]; ok {
			return nil, errors.Errorf("mavlink dialect duplicate id=%d %s and %s", def.ID, prev.Name, def.Name)
		}
		d.defs[def.ID] = def
	}
	return d, nil
}

func (d *Dialect) Lookup(id uint32) (*Definition, bool) {
	def, ok := d.defs[id]
	return def, ok
}

func (d *Dialect) IDs() []uint32 {
	ids := make([]uint32, 0, len(d.defs))
	for id := range d.defs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Decode frame payload into typed message. v2 truncated payload is zero-padded back.
func (d *Dialect) Decode(f *Frame) (Message, error) {
	def, ok := d.defs[f.MsgID]
	if !ok {
		return nil, errors.Annotatef(ErrUnknownMessage, "msgid=%d", f.MsgID)
	}
	payload := f.Payload
	if len(payload) < def.size {
		padded := make([]byte, def.size)
		copy(padded, payload)
		payload = padded
	}
	m := def.New()
	if err := m.UnmarshalPayload(payload[:def.size]); err != nil {
		return nil, errors.Annotatef(err, "decode %s", def.Name)
	}
	return m, nil
}
