// Package avplayer implements a pull-based media player on top of libav:
// the caller repeatedly asks for the next decoded frame, and the player
// demultiplexes packets, drives the per-stream decoders (hardware
// accelerated when possible) and merges their output back into presentation
// order. Nothing runs until the caller asks, so pacing, buffering and
// rendering stay entirely on the caller's side.
package avplayer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/avplayer/pkg/accelerator"
)

// State is the transport state of the player.
type State int

const (
	// StateIdle: built, Play was not called yet.
	StateIdle State = iota
	// StatePlaying: the transport (if any) was asked to deliver data.
	StatePlaying
	// StatePaused: the transport (if any) was asked to stop delivering
	// data. Pausing has no effect on ProcessNextFrame: the player is
	// pull-based and the caller paces itself.
	StatePaused
	// StateEndOfPacketStream: the container is exhausted, the decoders are
	// flushed and are being drained.
	StateEndOfPacketStream
	// StateEnded: the decoders are drained, ProcessNextFrame returns
	// ErrEndOfStream.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEndOfPacketStream:
		return "end-of-packet-stream"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// mediaSource is what the player pulls packets from. *InputSource is the
// production implementation.
type mediaSource interface {
	ReadPacket(ctx context.Context, packet *astiav.Packet) (int, error)
	Seek(ctx context.Context, position time.Duration) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
}

// activeStream is one selected stream: its decoder and the scratch frame
// the decoder decodes into. readyPTS is non-nil while the scratch frame
// holds a decoded, not yet delivered frame.
type activeStream struct {
	info     StreamInfo
	decoder  streamDecoder
	scratch  *Frame
	readyPTS *int64
}

// PlayerBuilder configures and constructs a Player.
type PlayerBuilder struct {
	source              *InputSource
	acceleratorConfig   *accelerator.Config
	targetPixelFormats  []OutputPixelFormat
	videoStreamIndex    *int
	audioStreamIndex    *int
	subtitleStreamIndex *int
}

// NewPlayerBuilder starts building a player over the given source. The
// built player takes ownership of the source and closes it on Close.
func NewPlayerBuilder(source *InputSource) *PlayerBuilder {
	return &PlayerBuilder{
		source:             source,
		targetPixelFormats: []OutputPixelFormat{OutputPixelFormatNv12},
	}
}

// WithTargetPixelFormats sets the acceptable video output formats in
// priority order. The list must not be empty; duplicates are removed,
// keeping the first occurrence.
func (b *PlayerBuilder) WithTargetPixelFormats(formats ...OutputPixelFormat) *PlayerBuilder {
	if len(formats) == 0 {
		panic("the list of target pixel formats is empty")
	}
	deduplicated := make([]OutputPixelFormat, 0, len(formats))
	for _, format := range formats {
		alreadyThere := false
		for _, f := range deduplicated {
			if f == format {
				alreadyThere = true
				break
			}
		}
		if !alreadyThere {
			deduplicated = append(deduplicated, format)
		}
	}
	b.targetPixelFormats = deduplicated
	return b
}

// WithAcceleratorConfig overrides the platform-default accelerator
// affinity.
func (b *PlayerBuilder) WithAcceleratorConfig(cfg *accelerator.Config) *PlayerBuilder {
	b.acceleratorConfig = cfg
	return b
}

// WithVideoStream pins the video stream to decode instead of auto-selecting
// the best one. The index is validated at Build.
func (b *PlayerBuilder) WithVideoStream(index int) *PlayerBuilder {
	b.videoStreamIndex = &index
	return b
}

// WithAudioStream pins the audio stream to decode.
func (b *PlayerBuilder) WithAudioStream(index int) *PlayerBuilder {
	b.audioStreamIndex = &index
	return b
}

// WithSubtitleStream pins the subtitle stream to decode.
func (b *PlayerBuilder) WithSubtitleStream(index int) *PlayerBuilder {
	b.subtitleStreamIndex = &index
	return b
}

// Build selects the streams, opens their decoders and assembles the player.
//
// A source with no stream of any requested kind yields ErrNoStreams. Kinds
// absent from the container are simply not decoded; no decoder is
// constructed for them.
func (b *PlayerBuilder) Build(ctx context.Context) (_ *Player, _err error) {
	if b.acceleratorConfig == nil {
		b.acceleratorConfig = accelerator.DefaultConfig(ctx)
	}

	videoInfo, err := b.source.FindBestStream(ctx, astiav.MediaTypeVideo, b.videoStreamIndex)
	if err != nil {
		return nil, fmt.Errorf("unable to select a video stream: %w", err)
	}
	audioInfo, err := b.source.FindBestStream(ctx, astiav.MediaTypeAudio, b.audioStreamIndex)
	if err != nil {
		return nil, fmt.Errorf("unable to select an audio stream: %w", err)
	}
	subtitleInfo, err := b.source.FindBestStream(ctx, astiav.MediaTypeSubtitle, b.subtitleStreamIndex)
	if err != nil {
		return nil, fmt.Errorf("unable to select a subtitle stream: %w", err)
	}
	if videoInfo == nil && audioInfo == nil && subtitleInfo == nil {
		return nil, ErrNoStreams
	}

	p := &Player{
		source:      b.source,
		sourceOwned: b.source,
		packet:      astiav.AllocPacket(),
	}
	defer func() {
		if _err != nil {
			_ = p.closeStreams()
		}
	}()

	if videoInfo != nil {
		targets := make([]astiav.PixelFormat, 0, len(b.targetPixelFormats))
		for _, format := range b.targetPixelFormats {
			targets = append(targets, format.toAstiav())
		}
		factory := newVideoDecoderFactory(b.source, b.acceleratorConfig, targets)
		decoder, err := factory.open(ctx, *videoInfo)
		if err != nil {
			return nil, fmt.Errorf("unable to open a video decoder: %w", err)
		}
		p.video = &activeStream{info: *videoInfo, decoder: decoder, scratch: newFrame()}
	}
	if audioInfo != nil {
		decoder, err := openStreamDecoder(ctx, b.source, *audioInfo)
		if err != nil {
			return nil, fmt.Errorf("unable to open an audio decoder: %w", err)
		}
		p.audio = &activeStream{info: *audioInfo, decoder: decoder, scratch: newFrame()}
	}
	if subtitleInfo != nil {
		decoder, err := newSubtitleDecoder(ctx, *subtitleInfo)
		if err != nil {
			return nil, fmt.Errorf("unable to open a subtitle decoder: %w", err)
		}
		p.subtitle = &activeStream{info: *subtitleInfo, decoder: decoder, scratch: newFrame()}
	}

	logger.Debugf(ctx, "built a player: video=%s audio=%s subtitle=%s",
		streamIndexString(videoInfo), streamIndexString(audioInfo), streamIndexString(subtitleInfo))
	return p, nil
}

func streamIndexString(info *StreamInfo) string {
	if info == nil {
		return "none"
	}
	return fmt.Sprintf("#%d(%s)", info.Index, info.CodecName)
}

// Player pulls packets from a source, feeds the per-stream decoders and
// hands decoded frames out in presentation order.
//
// All methods must be called from a single goroutine.
type Player struct {
	source      mediaSource
	sourceOwned io.Closer

	video    *activeStream
	audio    *activeStream
	subtitle *activeStream

	packet            *astiav.Packet
	state             State
	endOfPacketStream bool
	flushed           bool
	stats             Statistics
}

// State returns the transport state of the player.
func (p *Player) State() State {
	return p.state
}

// Statistics returns a snapshot of the player's counters.
func (p *Player) Statistics() Statistics {
	return p.stats
}

// Play asks the source's transport to deliver data. Sources without a
// transport (files, most protocols) make this a state-only transition.
func (p *Player) Play(ctx context.Context) error {
	logger.Debugf(ctx, "starting playback")
	if err := p.source.Play(ctx); err != nil && !errors.Is(err, errTransportNotSupported) {
		return fmt.Errorf("unable to start the transport: %w", err)
	}
	if p.state == StateIdle || p.state == StatePaused {
		p.state = StatePlaying
	}
	return nil
}

// Pause asks the source's transport to stop delivering data. Pull-driven
// decoding is unaffected: the caller paces itself by not calling
// ProcessNextFrame.
func (p *Player) Pause(ctx context.Context) error {
	logger.Debugf(ctx, "pausing playback")
	if err := p.source.Pause(ctx); err != nil && !errors.Is(err, errTransportNotSupported) {
		return fmt.Errorf("unable to pause the transport: %w", err)
	}
	if p.state == StatePlaying {
		p.state = StatePaused
	}
	return nil
}

// Seek repositions the source. Decoders are not reset: frames buffered
// before the seek may still come out first.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	return p.source.Seek(ctx, position)
}

// ProcessNextFrame returns the next decoded frame in presentation order,
// doing however much demultiplexing and decoding that takes. Once the
// source and all decoders are exhausted it returns ErrEndOfStream.
//
// The caller owns the returned frame and must Close it.
func (p *Player) ProcessNextFrame(ctx context.Context) (DecodedFrame, error) {
	start := time.Now()
	defer func() { p.stats.TotalDuration += time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := p.nextFrame(ctx)
		switch {
		case err == nil:
			p.stats.FramesDeliveredTotal++
			return frame, nil
		case errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof):
			if p.endOfPacketStream {
				logger.Debugf(ctx, "all decoders are drained")
				p.state = StateEnded
				return nil, ErrEndOfStream
			}
		default:
			return nil, err
		}

		streamIndex, err := p.readNextPacket(ctx)
		switch {
		case err == nil:
			if err := p.dispatchPacket(ctx, streamIndex); err != nil {
				return nil, err
			}
		case errors.Is(err, astiav.ErrEof):
			logger.Debugf(ctx, "the packet stream ended, flushing the decoders")
			p.endOfPacketStream = true
			p.state = StateEndOfPacketStream
			if err := p.flushDecoders(ctx); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unable to read a packet: %w", err)
		}
	}
}

// nextFrame delivers a ready frame if any stream holds one; otherwise it
// polls every decoder once and retries the delivery. astiav.ErrEagain means
// no decoder can produce a frame without more input.
func (p *Player) nextFrame(ctx context.Context) (DecodedFrame, error) {
	if frame := p.takeReadyFrame(); frame != nil {
		return frame, nil
	}

	start := time.Now()
	for _, stream := range []*activeStream{p.video, p.audio, p.subtitle} {
		if err := p.pollStream(ctx, stream); err != nil {
			return nil, err
		}
	}
	p.stats.FramesDecodedDuration += time.Since(start)

	if frame := p.takeReadyFrame(); frame != nil {
		return frame, nil
	}
	return nil, astiav.ErrEagain
}

// pollStream asks one decoder for a frame and marks the stream ready on
// success. "Needs more input" and "fully drained" are normal here.
func (p *Player) pollStream(ctx context.Context, stream *activeStream) error {
	if stream == nil || stream.readyPTS != nil {
		return nil
	}
	err := stream.decoder.Decode(ctx, stream.scratch)
	switch {
	case err == nil:
		pts := stream.scratch.pts
		stream.readyPTS = &pts
		switch stream.info.MediaType {
		case astiav.MediaTypeVideo:
			p.stats.VideoFramesDecoded++
		case astiav.MediaTypeAudio:
			p.stats.AudioFramesDecoded++
		case astiav.MediaTypeSubtitle:
			p.stats.SubtitleFramesDecoded++
		}
	case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
	default:
		return fmt.Errorf("unable to decode a frame of stream #%d: %w", stream.info.Index, err)
	}
	return nil
}

// takeReadyFrame hands out the ready frame with the smallest raw PTS.
// Raw timestamps of different streams are compared directly: selected
// streams of one container virtually always share a time base, and
// occasional misordering across streams is harmless for a player.
// Ties break video, then audio, then subtitle, so a subtitle never
// precedes the picture it annotates. Missing frames count as +inf.
func (p *Player) takeReadyFrame() DecodedFrame {
	const inf = int64(math.MaxInt64)
	video, audio, subtitle := readyPTSOrInf(p.video), readyPTSOrInf(p.audio), readyPTSOrInf(p.subtitle)

	switch {
	case video != inf && video <= audio && video <= subtitle:
		return &VideoFrame{frameBase{inner: p.deliver(p.video)}}
	case audio != inf && audio <= subtitle:
		return &AudioFrame{frameBase{inner: p.deliver(p.audio)}}
	case subtitle != inf:
		return &SubtitleFrame{frameBase{inner: p.deliver(p.subtitle)}}
	}
	return nil
}

func readyPTSOrInf(stream *activeStream) int64 {
	if stream == nil || stream.readyPTS == nil {
		return math.MaxInt64
	}
	return *stream.readyPTS
}

// deliver moves the ready scratch frame out of the stream and replaces it
// with a fresh one, transferring ownership of the decoded data to the
// caller.
func (p *Player) deliver(stream *activeStream) *Frame {
	frame := stream.scratch
	stream.scratch = newFrame()
	stream.readyPTS = nil
	return frame
}

func (p *Player) readNextPacket(ctx context.Context) (int, error) {
	start := time.Now()
	streamIndex, err := p.source.ReadPacket(ctx, p.packet)
	if err != nil {
		return 0, err
	}
	p.stats.PacketReadDuration += time.Since(start)
	p.stats.PacketsRead++
	return streamIndex, nil
}

// dispatchPacket routes the scratch packet to the decoder of its stream.
// Packets of unselected streams are dropped.
func (p *Player) dispatchPacket(ctx context.Context, streamIndex int) error {
	for _, stream := range []*activeStream{p.video, p.audio, p.subtitle} {
		if stream == nil || stream.info.Index != streamIndex {
			continue
		}
		if err := stream.decoder.WritePacket(ctx, p.packet); err != nil {
			return fmt.Errorf("unable to send a packet to the decoder of stream #%d: %w",
				streamIndex, err)
		}
		return nil
	}
	logger.Tracef(ctx, "dropping a packet of the unselected stream #%d", streamIndex)
	return nil
}

func (p *Player) flushDecoders(ctx context.Context) error {
	if p.flushed {
		return nil
	}
	p.flushed = true
	for _, stream := range []*activeStream{p.video, p.audio, p.subtitle} {
		if stream == nil {
			continue
		}
		if err := stream.decoder.Flush(ctx); err != nil {
			return fmt.Errorf("unable to flush the decoder of stream #%d: %w",
				stream.info.Index, err)
		}
	}
	return nil
}

func (p *Player) closeStreams() error {
	var result *multierror.Error
	for _, stream := range []*activeStream{p.video, p.audio, p.subtitle} {
		if stream == nil {
			continue
		}
		result = multierror.Append(result, stream.decoder.Close())
		result = multierror.Append(result, stream.scratch.Close())
	}
	if p.packet != nil {
		p.packet.Free()
		p.packet = nil
	}
	return result.ErrorOrNil()
}

// Close releases the decoders, the scratch buffers and the source.
func (p *Player) Close() error {
	result := multierror.Append(nil, p.closeStreams())
	if p.sourceOwned != nil {
		result = multierror.Append(result, p.sourceOwned.Close())
		p.sourceOwned = nil
	}
	return result.ErrorOrNil()
}
