package minestat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/haveachin/minestat/pkg/minestat/protocol"
)

// Kinds of query failures. Every error returned by a query matches exactly one
// of them with errors.Is.
var (
	ErrConnection         = errors.New("connection error")
	ErrTimeout            = errors.New("timeout")
	ErrProtocolDecode     = errors.New("protocol decode error")
	ErrUnexpectedPacketID = errors.New("unexpected packet id")
	ErrMalformedPayload   = errors.New("malformed payload")

	ErrInvalidPort = errors.New("port out of range 1-65535")
)

// Stage is the step of a query that was running when it failed.
type Stage string

const (
	StageConnect   Stage = "connect"
	StageHandshake Stage = "handshake"
	StageRequest   Stage = "request"
	StageResponse  Stage = "response"
	StageParse     Stage = "parse"
	StagePing      Stage = "ping"
)

type QueryError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	return target == e.Kind
}

func newQueryError(stage Stage, kind, err error) *QueryError {
	return &QueryError{
		Stage: stage,
		Kind:  kind,
		Err:   err,
	}
}

// wrapError classifies err into one of the query error kinds.
// Errors that already are a *QueryError keep their classification.
func wrapError(stage Stage, err error) error {
	if err == nil {
		return nil
	}

	var qErr *QueryError
	if errors.As(err, &qErr) {
		return qErr
	}

	return newQueryError(stage, errorKind(err), err)
}

func errorKind(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return ErrTimeout
	case errors.Is(err, protocol.ErrInvalidPacketID):
		return ErrUnexpectedPacketID
	case errors.Is(err, protocol.ErrVarIntTooBig),
		errors.Is(err, protocol.ErrInvalidPacketLength),
		errors.Is(err, protocol.ErrInvalidStringLength),
		errors.Is(err, protocol.ErrTrailingData),
		errors.Is(err, errPongMismatch):
		return ErrProtocolDecode
	default:
		return ErrConnection
	}
}
