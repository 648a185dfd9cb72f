package minestat

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/haveachin/minestat/pkg/minestat/protocol"
	"github.com/haveachin/minestat/pkg/minestat/protocol/handshaking"
	"github.com/haveachin/minestat/pkg/minestat/protocol/status"
)

var errPongMismatch = errors.New("pong payload does not match ping")

// WriteHandshake writes the length-prefixed handshake that switches the
// connection into the status state.
func WriteHandshake(w io.Writer, address string, port uint16, version protocol.Version) error {
	var pk protocol.Packet
	if err := handshaking.NewStatusHandshake(address, port, version).Marshal(&pk); err != nil {
		return err
	}

	_, err := pk.WriteTo(w)
	return err
}

// WriteStatusRequest writes the empty status request packet.
func WriteStatusRequest(w io.Writer) error {
	var pk protocol.Packet
	if err := (status.ServerBoundRequest{}).Marshal(&pk); err != nil {
		return err
	}

	_, err := pk.WriteTo(w)
	return err
}

// ReadStatusResponse reads one status response packet from r and parses its JSON
// payload. maxDataLen bounds the declared packet body; values <= 0 fall back to
// protocol.MaxDataLength. The body has to consist of exactly the JSON string.
func ReadStatusResponse(r io.Reader, maxDataLen int) (ServerStatus, error) {
	if maxDataLen <= 0 {
		maxDataLen = protocol.MaxDataLength
	}

	var pk protocol.Packet
	if _, err := pk.ReadLimitedFrom(r, maxDataLen); err != nil {
		return nil, wrapError(StageResponse, err)
	}

	var resp status.ClientBoundResponse
	if err := resp.Unmarshal(pk); err != nil {
		if errors.Is(err, protocol.ErrInvalidPacketID) {
			return nil, newQueryError(StageResponse, ErrUnexpectedPacketID,
				fmt.Errorf("%w: got 0x%02x", err, pk.ID))
		}
		return nil, newQueryError(StageResponse, ErrProtocolDecode, err)
	}

	return ParseServerStatus([]byte(resp.JSONResponse))
}

// Ping sends a ping with the given payload over rw and waits for the matching pong.
// It returns the measured round trip time.
func Ping(rw io.ReadWriter, payload int64) (time.Duration, error) {
	var pk protocol.Packet
	if err := (status.ServerBoundPing{Payload: protocol.Long(payload)}).Marshal(&pk); err != nil {
		return 0, err
	}

	start := time.Now()
	if _, err := pk.WriteTo(rw); err != nil {
		return 0, err
	}

	if f, ok := rw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return 0, err
		}
	}

	if _, err := pk.ReadFrom(rw); err != nil {
		return 0, err
	}
	rtt := time.Since(start)

	var pong status.ClientBoundPong
	if err := pong.Unmarshal(pk); err != nil {
		return 0, err
	}

	if int64(pong.Payload) != payload {
		return 0, fmt.Errorf("%w: got %d, want %d", errPongMismatch, pong.Payload, payload)
	}

	return rtt, nil
}
