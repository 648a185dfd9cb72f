package protocol

import (
	"io"
)

// A Field is both FieldEncoder and FieldDecoder.
type Field interface {
	FieldEncoder
	FieldDecoder
}

// A FieldEncoder can be encoded the way the minecraft protocol does it.
type FieldEncoder io.WriterTo

// A FieldDecoder can be decoded from the minecraft protocol.
type FieldDecoder io.ReaderFrom

type (
	// UnsignedShort is unsigned 16-bit integer, big-endian.
	UnsignedShort uint16
	// Long is signed 64-bit integer, two's complement, big-endian.
	Long int64
	// String is a UTF-8 string prefixed with its byte length as VarInt.
	String string

	// VarInt is variable-length data encoding a two's complement signed 32-bit integer.
	VarInt int32
)

const (
	MaxVarIntLen = 5
	// MaxStringLen is the longest String the protocol allows: 32767 UTF-16 code units,
	// each taking up to 3 bytes.
	MaxStringLen = 32767 * 3
)

func (s String) WriteTo(w io.Writer) (int64, error) {
	byteStr := []byte(s)
	n1, err := VarInt(len(byteStr)).WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := w.Write(byteStr)
	return n1 + int64(n2), err
}

func (s *String) ReadFrom(r io.Reader) (int64, error) {
	return s.ReadLimitedFrom(r, MaxStringLen)
}

// ReadLimitedFrom reads a String that is at most maxLen bytes long.
func (s *String) ReadLimitedFrom(r io.Reader, maxLen int) (int64, error) {
	var l VarInt // String length

	n, err := l.ReadFrom(r)
	if err != nil {
		return n, err
	}

	if l < 0 || int(l) > maxLen {
		return n, ErrInvalidStringLength
	}

	bs := make([]byte, l)
	nn, err := io.ReadFull(r, bs)
	n += int64(nn)
	if err != nil {
		return n, err
	}

	*s = String(bs)
	return n, nil
}

// LimitedString decodes a String of at most Max bytes into S.
// It lets fields that are bounded by their packet exceed MaxStringLen.
type LimitedString struct {
	S   *String
	Max int
}

func (ls LimitedString) ReadFrom(r io.Reader) (int64, error) {
	return ls.S.ReadLimitedFrom(r, ls.Max)
}

// readByte read one byte from io.Reader.
func readByte(r io.Reader) (int64, byte, error) {
	if r, ok := r.(io.ByteReader); ok {
		v, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		return 1, v, nil
	}
	var v [1]byte
	n, err := io.ReadFull(r, v[:])
	return int64(n), v[0], err
}

func (us UnsignedShort) WriteTo(w io.Writer) (int64, error) {
	n := uint16(us)
	nn, err := w.Write([]byte{byte(n >> 8), byte(n)})
	return int64(nn), err
}

func (us *UnsignedShort) ReadFrom(r io.Reader) (int64, error) {
	var bs [2]byte
	nn, err := io.ReadFull(r, bs[:])
	if err != nil {
		return int64(nn), err
	}

	*us = UnsignedShort(uint16(bs[0])<<8 | uint16(bs[1]))
	return int64(nn), nil
}

func (l Long) WriteTo(w io.Writer) (int64, error) {
	n := uint64(l)
	nn, err := w.Write([]byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	})
	return int64(nn), err
}

func (l *Long) ReadFrom(r io.Reader) (int64, error) {
	var bs [8]byte
	nn, err := io.ReadFull(r, bs[:])
	if err != nil {
		return int64(nn), err
	}

	*l = Long(int64(bs[0])<<56 | int64(bs[1])<<48 | int64(bs[2])<<40 | int64(bs[3])<<32 |
		int64(bs[4])<<24 | int64(bs[5])<<16 | int64(bs[6])<<8 | int64(bs[7]))
	return int64(nn), nil
}

func (v VarInt) WriteTo(w io.Writer) (int64, error) {
	var vi [MaxVarIntLen]byte
	n := v.WriteToBytes(vi[:])
	n, err := w.Write(vi[:n])
	return int64(n), err
}

// WriteToBytes encodes the VarInt into buf and returns the number of bytes written.
// The value is shifted as uint32, so negative values take the full five bytes.
// If the buffer is too small, WriteToBytes will panic.
func (v VarInt) WriteToBytes(buf []byte) int {
	num := uint32(v)
	i := 0
	for {
		b := num & 0x7F
		num >>= 7
		if num != 0 {
			b |= 0x80
		}
		buf[i] = byte(b)
		i++
		if num == 0 {
			break
		}
	}
	return i
}

// ReadFrom decodes a VarInt from r. It never consumes more than MaxVarIntLen bytes
// and returns ErrVarIntTooBig if the fifth byte still has its continuation bit set.
func (v *VarInt) ReadFrom(r io.Reader) (int64, error) {
	var vi uint32
	var n int64
	for i := 0; ; i++ {
		if i >= MaxVarIntLen {
			return n, ErrVarIntTooBig
		}

		nn, b, err := readByte(r)
		n += nn
		if err != nil {
			return n, err
		}

		vi |= uint32(b&0x7F) << uint32(7*i)
		if b&0x80 == 0 {
			break
		}
	}
	*v = VarInt(vi)
	return n, nil
}

// Len returns the number of bytes required to encode the VarInt.
func (v VarInt) Len() int {
	switch {
	case v < 0:
		return MaxVarIntLen
	case v < 1<<(7*1):
		return 1
	case v < 1<<(7*2):
		return 2
	case v < 1<<(7*3):
		return 3
	case v < 1<<(7*4):
		return 4
	default:
		return 5
	}
}
