package handshaking

import (
	"github.com/haveachin/minestat/pkg/minestat/protocol"
)

const (
	ServerBoundHandshakeID int32 = 0x00

	StateStatusServerBoundHandshake = protocol.VarInt(1)
	StateLoginServerBoundHandshake  = protocol.VarInt(2)
)

type ServerBoundHandshake struct {
	ProtocolVersion protocol.VarInt
	ServerAddress   protocol.String
	ServerPort      protocol.UnsignedShort
	NextState       protocol.VarInt
}

// NewStatusHandshake returns the handshake that moves the connection into the status state.
func NewStatusHandshake(addr string, port uint16, version protocol.Version) ServerBoundHandshake {
	return ServerBoundHandshake{
		ProtocolVersion: protocol.VarInt(version.ProtocolNumber()),
		ServerAddress:   protocol.String(addr),
		ServerPort:      protocol.UnsignedShort(port),
		NextState:       StateStatusServerBoundHandshake,
	}
}

func (pk ServerBoundHandshake) Marshal(packet *protocol.Packet) error {
	return packet.Encode(
		ServerBoundHandshakeID,
		pk.ProtocolVersion,
		pk.ServerAddress,
		pk.ServerPort,
		pk.NextState,
	)
}

func (pk *ServerBoundHandshake) Unmarshal(packet protocol.Packet) error {
	if packet.ID != ServerBoundHandshakeID {
		return protocol.ErrInvalidPacketID
	}

	return packet.Decode(
		&pk.ProtocolVersion,
		&pk.ServerAddress,
		&pk.ServerPort,
		&pk.NextState,
	)
}

func (pk ServerBoundHandshake) IsStatusRequest() bool {
	return pk.NextState == StateStatusServerBoundHandshake
}

func (pk ServerBoundHandshake) IsLoginRequest() bool {
	return pk.NextState == StateLoginServerBoundHandshake
}
