package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestPacket_WriteTo(t *testing.T) {
	tt := []struct {
		name     string
		packet   Packet
		expected []byte
	}{
		{
			name: "empty body",
			packet: Packet{
				ID: 0x00,
			},
			expected: []byte{0x01, 0x00},
		},
		{
			name: "with body",
			packet: Packet{
				ID:   0x00,
				Data: []byte{0x00, 0xf2},
			},
			expected: []byte{0x03, 0x00, 0x00, 0xf2},
		},
		{
			name: "other id",
			packet: Packet{
				ID:   0x0f,
				Data: []byte{0x00, 0xf2, 0x03, 0x50},
			},
			expected: []byte{0x05, 0x0f, 0x00, 0xf2, 0x03, 0x50},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tc.packet.WriteTo(&buf)
			if err != nil {
				t.Fatal(err)
			}

			if n != int64(len(tc.expected)) {
				t.Errorf("n: got: %d; want: %d", n, len(tc.expected))
			}

			if !bytes.Equal(buf.Bytes(), tc.expected) {
				t.Errorf("got: % x; want: % x", buf.Bytes(), tc.expected)
			}
		})
	}
}

func TestPacket_ReadFrom(t *testing.T) {
	tt := []struct {
		name     string
		bb       []byte
		expected Packet
		err      error
	}{
		{
			name:     "empty body",
			bb:       []byte{0x01, 0x00},
			expected: Packet{ID: 0x00, Data: []byte{}},
		},
		{
			name:     "with body",
			bb:       []byte{0x03, 0x00, 0x00, 0xf2},
			expected: Packet{ID: 0x00, Data: []byte{0x00, 0xf2}},
		},
		{
			name: "zero length",
			bb:   []byte{0x00},
			err:  ErrInvalidPacketLength,
		},
		{
			name: "length shorter than id",
			bb:   []byte{0x01, 0x80, 0x01},
			err:  ErrInvalidPacketLength,
		},
		{
			name: "body too large",
			bb:   []byte{0xff, 0xff, 0xff, 0xff, 0x07, 0x00},
			err:  ErrInvalidPacketLength,
		},
		{
			name: "truncated body",
			bb:   []byte{0x05, 0x00, 0x01},
			err:  io.ErrUnexpectedEOF,
		},
		{
			name: "oversized length",
			bb:   []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01},
			err:  ErrVarIntTooBig,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var pk Packet
			_, err := pk.ReadFrom(bytes.NewReader(tc.bb))
			if !errors.Is(err, tc.err) {
				t.Fatalf("want error %v; got %v", tc.err, err)
			}

			if err != nil {
				return
			}

			if pk.ID != tc.expected.ID {
				t.Errorf("id: got: %d; want: %d", pk.ID, tc.expected.ID)
			}

			if !bytes.Equal(pk.Data, tc.expected.Data) {
				t.Errorf("got: % x; want: % x", pk.Data, tc.expected.Data)
			}
		})
	}
}

func TestPacket_ReadLimitedFrom(t *testing.T) {
	var pk Packet
	r := bytes.NewReader([]byte{0x04, 0x00, 0x01, 0x02, 0x03})
	if _, err := pk.ReadLimitedFrom(r, 2); !errors.Is(err, ErrInvalidPacketLength) {
		t.Errorf("want error %v; got %v", ErrInvalidPacketLength, err)
	}
}

func TestPacket_Decode(t *testing.T) {
	pk := Packet{
		ID:   0x00,
		Data: []byte{0x02, 'h', 'i', 0x63, 0xdd},
	}

	var s String
	var us UnsignedShort
	if err := pk.Decode(&s, &us); err != nil {
		t.Fatal(err)
	}

	if s != "hi" || us != 25565 {
		t.Errorf("got: %q, %d; want: %q, %d", s, us, "hi", 25565)
	}

	if err := pk.Decode(&s); !errors.Is(err, ErrTrailingData) {
		t.Errorf("want error %v; got %v", ErrTrailingData, err)
	}
}

func TestPacket_Encode(t *testing.T) {
	var pk Packet
	if err := pk.Encode(0x01, Long(1)); err != nil {
		t.Fatal(err)
	}

	if pk.ID != 0x01 {
		t.Errorf("packet id: got: %v; want: %v", pk.ID, 0x01)
	}

	expected := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	if !bytes.Equal(pk.Data, expected) {
		t.Errorf("got: %v; want: %v", pk.Data, expected)
	}
}
