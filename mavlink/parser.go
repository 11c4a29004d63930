package mavlink

import (
	"expvar"
	"fmt"
)

// Complex values are read and modified atomically, but not consistently.
type ParserStat struct {
	Frames  expvar.Int
	BadCRC  expvar.Int
	Unknown expvar.Int
	Skipped expvar.Int // garbage bytes between frames
}

func (s *ParserStat) String() string {
	return fmt.Sprintf(`{"frames":%d,"bad_crc":%d,"unknown":%d,"skipped":%d}`,
		s.Frames.Value(), s.BadCRC.Value(), s.Unknown.Value(), s.Skipped.Value())
}

// Parser is incremental byte stream decoder.
// Write() received bytes, then call Next() until it returns false.
// Not safe for concurrent use.
type Parser struct {
	dialect *Dialect
	buf     []byte
	Stat    ParserStat
}

func NewParser(d *Dialect) *Parser {
	return &Parser{dialect: d, buf: make([]byte, 0, 2*(HeaderSizeV2+MaxPayload+ChecksumSize+SignatureSize))}
}

func (p *Parser) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	return len(b), nil
}

func (p *Parser) Buffered() int { return len(p.buf) }

func (p *Parser) Reset() { p.buf = p.buf[:0] }

// Next returns next valid known frame from buffered bytes.
// Garbage is skipped, frames with bad checksum are dropped by resync on next byte,
// frames with unknown id are dropped whole.
func (p *Parser) Next() (*Frame, Message, bool) {
	for {
		i := indexMagic(p.buf)
		if i < 0 {
			p.Stat.Skipped.Add(int64(len(p.buf)))
			p.buf = p.buf[:0]
			return nil, nil, false
		}
		if i > 0 {
			p.Stat.Skipped.Add(int64(i))
			p.consume(i)
		}

		n := frameLength(p.buf)
		if n <= 0 || len(p.buf) < n {
			return nil, nil, false
		}
		f, err := frameUnmarshal(p.buf[:n])
		if err != nil {
			p.Stat.Skipped.Add(1)
			p.consume(1)
			continue
		}
		def, ok := p.dialect.Lookup(f.MsgID)
		if !ok {
			p.Stat.Unknown.Add(1)
			p.consume(n)
			continue
		}
		crcEnd := n - ChecksumSize
		if f.Signed() {
			crcEnd -= SignatureSize
		}
		if frameChecksum(p.buf[1:crcEnd], def.CRCExtra()) != f.Checksum {
			p.Stat.BadCRC.Add(1)
			p.consume(1)
			continue
		}
		m, err := p.dialect.Decode(f)
		if err != nil {
			p.Stat.Unknown.Add(1)
			p.consume(n)
			continue
		}
		p.consume(n)
		p.Stat.Frames.Add(1)
		return f, m, true
	}
}

func (p *Parser) consume(n int) {
	rest := copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}

func indexMagic(b []byte) int {
	for i, x := range b {
		if x == MagicV1 || x == MagicV2 {
			return i
		}
	}
	return -1
}
