package status

import "github.com/haveachin/minestat/pkg/minestat/protocol"

const ServerBoundRequestID int32 = 0x00

type ServerBoundRequest struct{}

func (pk ServerBoundRequest) Marshal(packet *protocol.Packet) error {
	return packet.Encode(
		ServerBoundRequestID,
	)
}

func (pk *ServerBoundRequest) Unmarshal(packet protocol.Packet) error {
	if packet.ID != ServerBoundRequestID {
		return protocol.ErrInvalidPacketID
	}

	return packet.Decode()
}
