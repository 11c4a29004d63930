// Package crc implements CRC-16/MCRF4XX, called "X.25" in MAVLink sources.
// poly=0x1021 reflected (0x8408), init=0xffff, no final xor.
package crc

const X25Init uint16 = 0xffff

func X25Accumulate(crc uint16, data byte) uint16 {
	tmp := data ^ byte(crc&0xff)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

func X25Bytes(crc uint16, bs []byte) uint16 {
	for _, b := range bs {
		crc = X25Accumulate(crc, b)
	}
	return crc
}

func X25String(crc uint16, s string) uint16 {
	for i := 0; i < len(s); i++ {
		crc = X25Accumulate(crc, s[i])
	}
	return crc
}

func X25(bs []byte) uint16 { return X25Bytes(X25Init, bs) }

// X25Reference is bit-by-bit form, used to verify the table-free shortcut above.
func X25Reference(crc uint16, data byte) uint16 {
	crc ^= uint16(data)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0x8408
		} else {
			crc >>= 1
		}
	}
	return crc
}
