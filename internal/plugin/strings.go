package plugin

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// ByteString is a fixed-capacity, NUL-terminated byte buffer. Writers
// truncate to capacity-1 bytes.
type ByteString struct {
	buf []byte
	n   int
}

// NewByteString allocates a buffer of capacity bytes including the
// terminator.
func NewByteString(capacity int) *ByteString {
	if capacity < 1 {
		capacity = 1
	}
	return &ByteString{buf: make([]byte, capacity)}
}

// Set stores v, truncated, and returns the number of bytes kept.
func (s *ByteString) Set(v []byte) int {
	clear(s.buf)
	s.n = copy(s.buf[:len(s.buf)-1], v)
	return s.n
}

// SetString stores v, truncated, and returns the number of bytes kept.
func (s *ByteString) SetString(v string) int {
	return s.Set([]byte(v))
}

// Reset zeroes the buffer.
func (s *ByteString) Reset() {
	clear(s.buf)
	s.n = 0
}

// Bytes returns a copy of the content without the terminator.
func (s *ByteString) Bytes() []byte {
	return append([]byte(nil), s.buf[:s.n]...)
}

func (s *ByteString) String() string { return string(s.buf[:s.n]) }

// Len returns the content length.
func (s *ByteString) Len() int { return s.n }

// Cap returns the capacity including the terminator.
func (s *ByteString) Cap() int { return len(s.buf) }

// Raw returns the whole buffer, terminator included.
func (s *ByteString) Raw() []byte { return s.buf }

// WideString is a fixed-capacity, NUL-terminated UTF-16 buffer. Capacity
// counts code units.
type WideString struct {
	buf []uint16
	n   int
}

// NewWideString allocates capacity code units including the terminator.
func NewWideString(capacity int) *WideString {
	if capacity < 1 {
		capacity = 1
	}
	return &WideString{buf: make([]uint16, capacity)}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// SetString stores v as UTF-16, truncated to capacity-1 units without
// splitting a surrogate pair, and returns the number of units kept.
func (s *WideString) SetString(v string) int {
	s.Reset()
	encoded, err := utf16le.NewEncoder().Bytes([]byte(v))
	if err != nil {
		return 0
	}
	units := len(encoded) / 2
	if limit := len(s.buf) - 1; units > limit {
		units = limit
		if units > 0 {
			last := binary.LittleEndian.Uint16(encoded[(units-1)*2:])
			if last >= 0xD800 && last <= 0xDBFF {
				units--
			}
		}
	}
	for i := 0; i < units; i++ {
		s.buf[i] = binary.LittleEndian.Uint16(encoded[i*2:])
	}
	s.n = units
	return units
}

// Reset zeroes the buffer.
func (s *WideString) Reset() {
	clear(s.buf)
	s.n = 0
}

func (s *WideString) String() string {
	raw := make([]byte, s.n*2)
	for i := 0; i < s.n; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:], s.buf[i])
	}
	out, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(out)
}

// Len returns the content length in code units.
func (s *WideString) Len() int { return s.n }

// Cap returns the capacity in code units including the terminator.
func (s *WideString) Cap() int { return len(s.buf) }

// Units returns the whole buffer, terminator included.
func (s *WideString) Units() []uint16 { return s.buf }
