package avplayer

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// InputSource is an opened media container: the exclusive owner of the
// demuxer handle from which the player pulls packets.
//
// The source is not safe for concurrent use, with one exception: Close may
// be called from a goroutine other than the one reading packets.
type InputSource struct {
	url           string
	closer        *astikit.Closer
	formatContext *astiav.FormatContext
	streams       []StreamInfo
}

// OpenInputSource opens the media at the given URL (a local path or anything
// the compiled-in protocols understand) and probes its streams.
//
// The call may block for an arbitrarily long time on network sources.
func OpenInputSource(
	ctx context.Context,
	url string,
) (_ *InputSource, _err error) {
	if url == "" {
		return nil, fmt.Errorf("the URL is empty")
	}

	src := &InputSource{
		url:    url,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = src.Close()
		}
	}()

	src.formatContext = astiav.AllocFormatContext()
	if src.formatContext == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	src.closer.Add(src.formatContext.Free)

	if err := src.formatContext.OpenInput(url, nil, nil); err != nil {
		return nil, fmt.Errorf("unable to open input '%s': %w", url, err)
	}
	src.closer.Add(src.formatContext.CloseInput)

	if err := src.formatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info of '%s': %w", url, err)
	}

	for _, stream := range src.formatContext.Streams() {
		src.streams = append(src.streams, newStreamInfo(stream))
	}

	logger.Debugf(ctx, "opened '%s': %d stream(s), duration %v",
		url, len(src.streams), src.Duration())
	return src, nil
}

// URL returns the URL the source was opened with.
func (src *InputSource) URL() string {
	return src.url
}

// Duration returns the total duration of the media, or zero when the
// container does not report one.
func (src *InputSource) Duration() time.Duration {
	d := src.formatContext.Duration()
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) / float64(astiav.TimeBase) * float64(time.Second))
}

// NumStreams returns the number of elementary streams in the container.
func (src *InputSource) NumStreams() int {
	return len(src.streams)
}

// Streams returns the descriptions of all elementary streams.
func (src *InputSource) Streams() []StreamInfo {
	return src.streams
}

// FindBestStream selects the stream to decode for the given media type.
//
// With a preferred index the stream at that index is returned after checking
// it is of the requested kind. Otherwise the "best" stream of the kind is
// chosen: among the streams a decoder exists for, the one with the highest
// resolution (video) or bit rate, lowest index winning ties.
//
// A container simply lacking the kind is not an error: the result is
// (nil, nil).
func (src *InputSource) FindBestStream(
	ctx context.Context,
	mediaType astiav.MediaType,
	preferredIndex *int,
) (*StreamInfo, error) {
	if preferredIndex != nil {
		idx := *preferredIndex
		if idx < 0 || idx >= len(src.streams) {
			return nil, fmt.Errorf("stream index %d is out of range [0, %d)", idx, len(src.streams))
		}
		info := &src.streams[idx]
		if info.MediaType != mediaType {
			return nil, fmt.Errorf("stream #%d is a %s stream, not a %s stream",
				idx, info.MediaType, mediaType)
		}
		return info, nil
	}

	var best *StreamInfo
	for i := range src.streams {
		info := &src.streams[i]
		if info.MediaType != mediaType {
			continue
		}
		if astiav.FindDecoder(info.codecID) == nil {
			logger.Debugf(ctx, "no decoder for stream #%d (codec ID %v), skipping",
				info.Index, info.codecID)
			continue
		}
		if best == nil || streamScore(info) > streamScore(best) {
			best = info
		}
	}
	return best, nil
}

func streamScore(info *StreamInfo) int64 {
	if info.Resolution != nil {
		return int64(info.Resolution.Width) * int64(info.Resolution.Height)
	}
	return info.BitRate
}

// ReadPacket reads the next packet of the container into the given scratch
// packet (unreferencing whatever it held before) and returns the index of
// the stream the packet belongs to.
//
// At the end of the container the error is astiav.ErrEof.
func (src *InputSource) ReadPacket(
	ctx context.Context,
	packet *astiav.Packet,
) (int, error) {
	packet.Unref()
	if err := src.formatContext.ReadFrame(packet); err != nil {
		return 0, err
	}
	return packet.StreamIndex(), nil
}

// Seek repositions the demuxer so that the next packets come from the
// nearest seekable point at or before the given position.
//
// Decoders keep their internal state; the caller decides whether stale
// buffered frames matter for its use case.
func (src *InputSource) Seek(ctx context.Context, position time.Duration) error {
	ts := int64(position.Seconds() * float64(astiav.TimeBase))
	logger.Debugf(ctx, "seeking '%s' to %v", src.url, position)
	if err := src.formatContext.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("unable to seek to %v: %w", position, err)
	}
	return nil
}

// Play asks the source's transport to resume delivering data. Only network
// protocols with a control channel (e.g. RTSP) have a transport; everything
// else reports errTransportNotSupported.
func (src *InputSource) Play(ctx context.Context) error {
	return errTransportNotSupported
}

// Pause asks the source's transport to stop delivering data. See Play.
func (src *InputSource) Pause(ctx context.Context) error {
	return errTransportNotSupported
}

// Close releases the demuxer handle. Safe to call from a goroutine other
// than the one that opened the source.
func (src *InputSource) Close() error {
	return src.closer.Close()
}
