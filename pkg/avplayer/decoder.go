package avplayer

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
)

// streamDecoder is the per-stream decoding state machine the player drives.
//
// The contract mirrors libav's send/receive model: WritePacket feeds one
// packet in, Decode pulls one frame out. Decode returns astiav.ErrEagain
// when more input is needed and astiav.ErrEof when the decoder has been
// flushed and fully drained; the player is the single place classifying
// these.
type streamDecoder interface {
	WritePacket(ctx context.Context, packet *astiav.Packet) error
	Decode(ctx context.Context, frame *Frame) error
	Flush(ctx context.Context) error
	Close() error
}

// baseDecoder wraps a libav codec context. It is used directly for audio
// and embedded by videoDecoder.
type baseDecoder struct {
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	stream       StreamInfo
	isOpen       bool
}

// openStreamDecoder creates and opens a software decoder for the stream.
func openStreamDecoder(
	ctx context.Context,
	src *InputSource,
	stream StreamInfo,
) (_ *baseDecoder, _err error) {
	d := &baseDecoder{stream: stream}
	defer func() {
		if _err != nil {
			_ = d.Close()
		}
	}()

	d.codec = astiav.FindDecoder(stream.codecID)
	if d.codec == nil {
		return nil, fmt.Errorf("unable to find a codec using codec ID %v", stream.codecID)
	}

	if err := d.allocContext(src); err != nil {
		return nil, err
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

// allocContext allocates the codec context and copies the stream parameters
// into it. The context is not opened yet.
func (d *baseDecoder) allocContext(src *InputSource) error {
	d.codecContext = astiav.AllocCodecContext(d.codec)
	if d.codecContext == nil {
		return fmt.Errorf("unable to allocate a codec context for '%s'", d.codec.Name())
	}
	if err := d.stream.codecParameters.ToCodecContext(d.codecContext); err != nil {
		return fmt.Errorf("unable to copy the codec parameters of stream #%d: %w",
			d.stream.Index, err)
	}
	if d.stream.MediaType == astiav.MediaTypeVideo && src != nil && d.stream.raw != nil {
		d.codecContext.SetFramerate(src.formatContext.GuessFrameRate(d.stream.raw, nil))
	}
	return nil
}

// open opens the codec context. Opening twice is a bug in the caller, not a
// runtime condition, hence the panic.
func (d *baseDecoder) open() error {
	if d.isOpen {
		panic("codec context is already open")
	}
	if err := d.codecContext.Open(d.codec, nil); err != nil {
		return fmt.Errorf("unable to open the codec context of '%s': %w", d.codec.Name(), err)
	}
	d.isOpen = true
	return nil
}

// WritePacket feeds one compressed packet into the decoder.
// astiav.ErrEagain passes through: it means "drain the decoder first".
func (d *baseDecoder) WritePacket(ctx context.Context, packet *astiav.Packet) error {
	return d.codecContext.SendPacket(packet)
}

// Decode pulls the next frame out of the decoder into the scratch frame.
// astiav.ErrEagain and astiav.ErrEof pass through for the caller to
// classify.
func (d *baseDecoder) Decode(ctx context.Context, frame *Frame) error {
	if err := d.codecContext.ReceiveFrame(frame.raw); err != nil {
		return err
	}
	frame.pts = frame.raw.Pts()
	frame.timeBase = d.stream.timeBase
	frame.stream = d.stream
	frame.hwPixelFormat = astiav.PixelFormatNone
	return nil
}

// Flush puts the decoder into draining mode: no more packets will arrive,
// remaining buffered frames are still delivered by Decode.
func (d *baseDecoder) Flush(ctx context.Context) error {
	if err := d.codecContext.SendPacket(nil); err != nil {
		return fmt.Errorf("unable to flush the decoder of stream #%d: %w", d.stream.Index, err)
	}
	return nil
}

func (d *baseDecoder) Close() error {
	if d.codecContext != nil {
		d.codecContext.Free()
		d.codecContext = nil
	}
	return nil
}
