package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// MaxDataLength is the largest packet body ReadFrom accepts.
const MaxDataLength = 0x200000

type Packet struct {
	ID   int32
	Data []byte
}

// Decode reads fields from the packet body in order. The body has to be consumed
// completely, otherwise ErrTrailingData is returned.
func (pk Packet) Decode(fields ...FieldDecoder) error {
	r := bytes.NewReader(pk.Data)
	if err := ScanFields(r, fields...); err != nil {
		return err
	}

	if r.Len() > 0 {
		return fmt.Errorf("%w: %d bytes left", ErrTrailingData, r.Len())
	}
	return nil
}

func ScanFields(r io.Reader, fields ...FieldDecoder) error {
	for i, v := range fields {
		_, err := v.ReadFrom(r)
		if err != nil {
			return fmt.Errorf("scanning packet field[%d] error: %w", i, err)
		}
	}
	return nil
}

func (pk *Packet) Encode(id int32, fields ...FieldEncoder) error {
	buf := bytes.NewBuffer(pk.Data[:0])
	for _, f := range fields {
		if _, err := f.WriteTo(buf); err != nil {
			return err
		}
	}
	pk.ID = id
	pk.Data = buf.Bytes()
	return nil
}

// WriteTo writes the packet with its VarInt length prefix followed by the
// VarInt packet ID and the body.
func (pk Packet) WriteTo(w io.Writer) (int64, error) {
	pkLen := VarInt(VarInt(pk.ID).Len() + len(pk.Data))
	nLen, err := pkLen.WriteTo(w)
	if err != nil {
		return nLen, err
	}
	n := nLen

	nID, err := VarInt(pk.ID).WriteTo(w)
	n += nID
	if err != nil {
		return n, err
	}

	if len(pk.Data) > 0 {
		nData, err := w.Write(pk.Data)
		n += int64(nData)
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

func (pk *Packet) ReadFrom(r io.Reader) (int64, error) {
	return pk.ReadLimitedFrom(r, MaxDataLength)
}

// ReadLimitedFrom reads a length-prefixed packet from r. Exactly the declared
// number of bytes is consumed. A declared length that cannot hold the packet ID
// or whose body exceeds maxDataLen fails with ErrInvalidPacketLength before any
// body byte is read.
func (pk *Packet) ReadLimitedFrom(r io.Reader, maxDataLen int) (int64, error) {
	var pkLen VarInt
	n, err := pkLen.ReadFrom(r)
	if err != nil {
		return n, err
	}

	if pkLen < 1 {
		return n, fmt.Errorf("%w: %d", ErrInvalidPacketLength, pkLen)
	}

	var pkID VarInt
	nID, err := pkID.ReadFrom(r)
	n += nID
	if err != nil {
		return n, err
	}
	pk.ID = int32(pkID)

	lengthOfData := int(pkLen) - int(nID)
	if lengthOfData < 0 || lengthOfData > maxDataLen {
		return n, fmt.Errorf("%w: data length of %d", ErrInvalidPacketLength, lengthOfData)
	}

	if cap(pk.Data) < lengthOfData {
		pk.Data = make([]byte, lengthOfData)
	} else {
		pk.Data = pk.Data[:lengthOfData]
	}

	nData, err := io.ReadFull(r, pk.Data)
	n += int64(nData)
	if err != nil {
		return n, err
	}

	return n, nil
}
