package avplayer

import (
	"time"

	"github.com/asticode/go-astiav"
)

// FrameRate is the average frame rate of a stream as a rational number.
type FrameRate struct {
	num int
	den int
}

func (r FrameRate) Num() int { return r.num }
func (r FrameRate) Den() int { return r.den }

// Float64 returns the frame rate in frames per second, or 0 when unknown.
func (r FrameRate) Float64() float64 {
	if r.den == 0 {
		return 0
	}
	return float64(r.num) / float64(r.den)
}

// Resolution is the size of a video stream in pixels.
type Resolution struct {
	Width  int
	Height int
}

// StreamInfo is an immutable description of one elementary stream of the
// container, built once from the demuxer's metadata.
type StreamInfo struct {
	// MediaType is the kind of the stream: video, audio or subtitle.
	MediaType astiav.MediaType
	// Index is the position of the stream inside the container.
	Index int
	// FrameRate is the average frame rate; zero for non-video streams.
	FrameRate FrameRate
	// Resolution is the pixel size for video streams, nil otherwise.
	Resolution *Resolution
	// Duration is the stream duration as reported by the container;
	// zero when the container does not know it.
	Duration time.Duration
	// NumFrames is the number of frames as reported by the container;
	// zero when unknown.
	NumFrames int64
	// BitRate is in bits per second; zero when unknown.
	BitRate int64
	// CodecName is the libav name of the decoder for this stream, or
	// "unknown" when no decoder is compiled in.
	CodecName string

	codecID         astiav.CodecID
	codecParameters *astiav.CodecParameters
	timeBase        astiav.Rational
	raw             *astiav.Stream
}

func newStreamInfo(stream *astiav.Stream) StreamInfo {
	codecParams := stream.CodecParameters()
	info := StreamInfo{
		MediaType: codecParams.MediaType(),
		Index:     stream.Index(),
		FrameRate: FrameRate{
			num: stream.AvgFrameRate().Num(),
			den: stream.AvgFrameRate().Den(),
		},
		Duration:  ptsToDuration(stream.Duration(), stream.TimeBase()),
		NumFrames: stream.NbFrames(),
		BitRate:   codecParams.BitRate(),
		CodecName: "unknown",

		codecID:         codecParams.CodecID(),
		codecParameters: codecParams,
		timeBase:        stream.TimeBase(),
		raw:             stream,
	}
	if codecParams.MediaType() == astiav.MediaTypeVideo {
		info.Resolution = &Resolution{
			Width:  codecParams.Width(),
			Height: codecParams.Height(),
		}
	}
	if codec := astiav.FindDecoder(codecParams.CodecID()); codec != nil {
		info.CodecName = codec.Name()
	}
	return info
}

// ptsToDuration converts a timestamp expressed in the given time base into a
// wall-clock duration.
func ptsToDuration(pts int64, timeBase astiav.Rational) time.Duration {
	if timeBase.Den() == 0 {
		return 0
	}
	return time.Duration(float64(pts) * timeBase.Float64() * float64(time.Second))
}
