package status

import "github.com/haveachin/minestat/pkg/minestat/protocol"

const ServerBoundPingID int32 = 0x01

type ServerBoundPing struct {
	Payload protocol.Long
}

func (pk ServerBoundPing) Marshal(packet *protocol.Packet) error {
	return packet.Encode(
		ServerBoundPingID,
		pk.Payload,
	)
}

func (pk *ServerBoundPing) Unmarshal(packet protocol.Packet) error {
	if packet.ID != ServerBoundPingID {
		return protocol.ErrInvalidPacketID
	}

	return packet.Decode(
		&pk.Payload,
	)
}
