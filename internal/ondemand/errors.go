package ondemand

import "errors"

// Request level failures. None of them is fatal to the engine.
var (
	ErrDeduplicated   = errors.New("identity already pending")
	ErrLateReply      = errors.New("late or unknown reply")
	ErrTimeout        = errors.New("resolution timed out")
	ErrSendFailure    = errors.New("resolution request send failed")
	ErrReplyFailed    = errors.New("authority failed to resolve")
	ErrProgramFailure = errors.New("forwarding programming failed")
)

// Engine and transport lifecycle
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrPoolStopped     = errors.New("worker pool stopped")
	ErrRunning         = errors.New("already running")
	ErrStopped         = errors.New("not running")
)
