package status

import "github.com/haveachin/minestat/pkg/minestat/protocol"

const (
	ClientBoundResponseID int32 = 0x00
)

type ClientBoundResponse struct {
	JSONResponse protocol.String
}

func (pk ClientBoundResponse) Marshal(packet *protocol.Packet) error {
	return packet.Encode(
		ClientBoundResponseID,
		pk.JSONResponse,
	)
}

// Unmarshal checks the packet ID before touching the body. The JSON string is
// only bounded by the packet length, since status payloads with large favicons
// exceed the regular string limit.
func (pk *ClientBoundResponse) Unmarshal(packet protocol.Packet) error {
	if packet.ID != ClientBoundResponseID {
		return protocol.ErrInvalidPacketID
	}

	return packet.Decode(
		protocol.LimitedString{S: &pk.JSONResponse, Max: len(packet.Data)},
	)
}
