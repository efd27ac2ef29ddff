package avplayer

import (
	"errors"
)

// ErrEndOfStream is returned by Player.ProcessNextFrame once the input
// source is exhausted and every decoder has been drained. It is a normal
// termination signal, not a failure.
var ErrEndOfStream = errors.New("end of stream")

// ErrNoStreams is returned by PlayerBuilder.Build when the source contains
// no stream of any of the requested kinds.
var ErrNoStreams = errors.New("no decodable streams were selected")

// errTransportNotSupported signals that the input source has no concept of
// transport control (true for anything that is not a network stream with a
// control channel). The player treats it as a no-op success.
var errTransportNotSupported = errors.New("transport control is not supported by this source")
