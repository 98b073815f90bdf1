package srpc

import (
	"github.com/pkg/errors"
)

// Sentinel errors returned by the srpc packages.
//
// These are plain errors.New values (not wrapped) so errors.Is keeps working
// after callers wrap them with additional context.
var (
	// ErrUnimplemented is returned when no handler matches the requested
	// service/method, either from a Mux lookup or from the wire as the
	// string "method not implemented".
	ErrUnimplemented = errors.New("method not implemented")
	// ErrCompleted is returned when a write is attempted against a call that
	// has already completed locally, or a CallStart is sent twice.
	ErrCompleted = errors.New("rpc already completed")
	// ErrExpectedCallStart is returned when the first packet read on a
	// server connection is not a CallStart.
	ErrExpectedCallStart = errors.New("expected call start as first packet")
	// ErrDuplicateCallStart is returned when a ServerRpc receives a second
	// CallStart for the same call.
	ErrDuplicateCallStart = errors.New("call start must be sent only once")
	// ErrCallDataBeforeStart is returned when a ServerRpc receives CallData
	// before any CallStart.
	ErrCallDataBeforeStart = errors.New("call data received before call start")
	// ErrEmptyPacket is returned when a Packet has no body, or a CallData
	// carries no data, flags, or error.
	ErrEmptyPacket = errors.New("packet body is empty")
	// ErrUnrecognizedPacket is returned for a packet kind that cannot occur
	// in the current state (e.g. a CallStart received by a ClientRpc).
	ErrUnrecognizedPacket = errors.New("unrecognized packet for this state")
	// ErrEmptyServiceId is returned when a handler declares no service id.
	ErrEmptyServiceId = errors.New("service id is empty")
	// ErrEmptyMethodId is returned when validating a CallStart with no
	// method id.
	ErrEmptyMethodId = errors.New("method id is empty")
	// ErrInvalidMessage is returned when a protobuf body fails to decode.
	ErrInvalidMessage = errors.New("invalid protobuf message")
	// ErrMessageTooLarge is returned when an encoded or length-prefixed
	// packet exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	// ErrMessageSizeZero is returned when a length prefix of zero is read.
	ErrMessageSizeZero = errors.New("zero-length message prefix")
	// ErrStreamClosed is returned on EOF with no remote error set.
	ErrStreamClosed = errors.New("stream closed")
	// ErrAborted is returned by reads and waits on a call whose peer sent a
	// CallCancel.
	ErrAborted = errors.New("rpc aborted")
	// ErrCancelled is returned when a call's context was cancelled.
	ErrCancelled = errors.New("context cancelled")
	// ErrStreamIdle is returned by wrapping layers that enforce an idle
	// timeout on an otherwise-silent stream.
	ErrStreamIdle = errors.New("stream idle timeout exceeded")
)

// Well-known error-kind wire strings. These are carried as plain strings in
// CallData.error and recognized by wrapping code without being reserved at
// the wire level.
const (
	// ErrStrRpcAbort is one of the recognized spellings of an aborted rpc.
	ErrStrRpcAbort = "rpc aborted"
	// ErrStrContextCancelled is one of the recognized spellings of an
	// aborted rpc caused by context cancellation.
	ErrStrContextCancelled = "context cancelled"
	// ErrStrStreamIdle is the recognized spelling of an idle-timeout error.
	ErrStrStreamIdle = "stream idle timeout exceeded"
)

// IsAbortErrorMessage returns true if the string is a recognized rpc-aborted
// error message.
func IsAbortErrorMessage(msg string) bool {
	return msg == ErrStrRpcAbort || msg == ErrStrContextCancelled
}

// IsStreamIdleErrorMessage returns true if the string is a recognized
// stream-idle-timeout error message.
func IsStreamIdleErrorMessage(msg string) bool {
	return msg == ErrStrStreamIdle
}

// RemoteError is a terminal error message received from the remote peer via
// CallData.error. It is surfaced to callers as a plain error with the
// remote's message text.
type RemoteError struct {
	// Msg is the error message received from the peer.
	Msg string
}

// NewRemoteError constructs a new RemoteError.
func NewRemoteError(msg string) *RemoteError {
	return &RemoteError{Msg: msg}
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return e.Msg
}

// IsAbort returns true if the remote error is a recognized abort message.
func (e *RemoteError) IsAbort() bool {
	return IsAbortErrorMessage(e.Msg)
}

// IsStreamIdle returns true if the remote error is a recognized
// stream-idle-timeout message.
func (e *RemoteError) IsStreamIdle() bool {
	return IsStreamIdleErrorMessage(e.Msg)
}
