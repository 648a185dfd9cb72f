package protocol

import "errors"

var (
	ErrVarIntTooBig        = errors.New("VarInt is too big")
	ErrInvalidPacketID     = errors.New("invalid packet id")
	ErrInvalidPacketLength = errors.New("invalid packet length")
	ErrInvalidStringLength = errors.New("invalid string length")
	ErrTrailingData        = errors.New("packet has trailing data")
)
