package avplayer

import (
	"time"
)

// Statistics are monotonically increasing counters of the work the player
// has done so far. Cheap enough to collect unconditionally.
type Statistics struct {
	// VideoFramesDecoded counts frames pulled out of the video decoder.
	VideoFramesDecoded uint64
	// AudioFramesDecoded counts frames pulled out of the audio decoder.
	AudioFramesDecoded uint64
	// SubtitleFramesDecoded counts decoded subtitle events.
	SubtitleFramesDecoded uint64
	// FramesDeliveredTotal counts frames handed out to the caller.
	FramesDeliveredTotal uint64
	// PacketsRead counts packets demultiplexed from the source, including
	// packets of unselected streams that were dropped.
	PacketsRead uint64
	// PacketReadDuration is the total wall-clock time spent inside the
	// demuxer.
	PacketReadDuration time.Duration
	// FramesDecodedDuration is the total wall-clock time spent polling the
	// decoders.
	FramesDecodedDuration time.Duration
	// TotalDuration is the total wall-clock time spent inside
	// ProcessNextFrame.
	TotalDuration time.Duration
}
