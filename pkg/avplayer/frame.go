package avplayer

import (
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
)

// Frame is the per-stream scratch buffer decoders decode into. The player
// keeps exactly one per selected stream and replaces it with a fresh one
// when the decoded content is handed out to the caller, so a delivered
// frame stays valid until the caller closes it.
type Frame struct {
	raw           *astiav.Frame
	pts           int64
	timeBase      astiav.Rational
	stream        StreamInfo
	hwPixelFormat astiav.PixelFormat
	subtitle      *subtitleData
}

func newFrame() *Frame {
	return &Frame{
		raw:           astiav.AllocFrame(),
		hwPixelFormat: astiav.PixelFormatNone,
	}
}

func (f *Frame) Close() error {
	if f.raw != nil {
		f.raw.Free()
		f.raw = nil
	}
	f.subtitle = nil
	return nil
}

// DecodedFrame is a decoded frame of any kind, handed out by
// Player.ProcessNextFrame in presentation order.
type DecodedFrame interface {
	// MediaType reports the kind of the frame.
	MediaType() astiav.MediaType
	// PTS is the presentation timestamp converted to a wall-clock offset
	// from the beginning of the stream.
	PTS() time.Duration
	// RawPTS is the presentation timestamp in the stream's own time base.
	RawPTS() int64
	// IsHardwareBacked reports whether the frame data still resides in
	// device memory.
	IsHardwareBacked() bool
	// Close releases the frame. The frame must not be used afterwards.
	Close() error
}

type frameBase struct {
	inner *Frame
}

func (f *frameBase) PTS() time.Duration {
	return ptsToDuration(f.inner.pts, f.inner.timeBase)
}

func (f *frameBase) RawPTS() int64 {
	return f.inner.pts
}

func (f *frameBase) Close() error {
	return f.inner.Close()
}

// VideoFrame is one decoded picture.
type VideoFrame struct {
	frameBase
}

func (f *VideoFrame) MediaType() astiav.MediaType {
	return astiav.MediaTypeVideo
}

// IsHardwareBacked reports whether the picture still resides in GPU memory.
// Accessing the bytes of a hardware-backed frame transparently downloads it.
func (f *VideoFrame) IsHardwareBacked() bool {
	return f.inner.hwPixelFormat != astiav.PixelFormatNone &&
		f.inner.raw.PixelFormat() == f.inner.hwPixelFormat
}

// PixelFormat returns the format the plane data is in once downloaded to
// host memory.
func (f *VideoFrame) PixelFormat() astiav.PixelFormat {
	if f.IsHardwareBacked() {
		// The download target is decided by libav; until it happened we
		// only know the device-side format.
		return f.inner.hwPixelFormat
	}
	return f.inner.raw.PixelFormat()
}

func (f *VideoFrame) Width() int  { return f.inner.raw.Width() }
func (f *VideoFrame) Height() int { return f.inner.raw.Height() }

// NumPlanes returns the number of data planes of the pixel format.
func (f *VideoFrame) NumPlanes() int {
	if n := planeCount(f.inner.raw.PixelFormat()); n > 0 {
		return n
	}
	n := 0
	for _, linesize := range f.inner.raw.Linesize() {
		if linesize > 0 {
			n++
		}
	}
	return n
}

// PlaneWidth returns the width of the given plane in samples (a chroma
// sample of NV12 counts as one sample of two bytes-per-component pairs).
func (f *VideoFrame) PlaneWidth(plane int) int {
	w, _, _ := planeGeometry(f.inner.raw.PixelFormat(), plane, f.Width(), f.Height())
	return w
}

// PlaneHeight returns the number of rows of the given plane.
func (f *VideoFrame) PlaneHeight(plane int) int {
	_, h, _ := planeGeometry(f.inner.raw.PixelFormat(), plane, f.Width(), f.Height())
	return h
}

// Stride returns the distance in bytes between the starts of two
// consecutive rows in the byte view returned by PlaneBytes. The view is
// tightly packed, so this is exactly the number of meaningful bytes per row.
func (f *VideoFrame) Stride(plane int) int {
	_, _, rowBytes := planeGeometry(f.inner.raw.PixelFormat(), plane, f.Width(), f.Height())
	return rowBytes
}

// PlaneBytes returns the pixel data of one plane, tightly packed
// (stride == Stride(plane)). When the frame is hardware-backed the data is
// downloaded to host memory first; the download happens once, subsequent
// calls reuse it.
func (f *VideoFrame) PlaneBytes(plane int) ([]byte, error) {
	if err := f.ensureSoftware(); err != nil {
		return nil, err
	}
	pf := f.inner.raw.PixelFormat()
	if plane < 0 || plane >= f.NumPlanes() {
		return nil, fmt.Errorf("plane %d is out of range [0, %d)", plane, f.NumPlanes())
	}

	buf, err := f.inner.raw.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("unable to get the data of the frame: %w", err)
	}

	offset := 0
	for i := 0; i < plane; i++ {
		_, rows, rowBytes := planeGeometry(pf, i, f.Width(), f.Height())
		offset += rows * rowBytes
	}
	_, rows, rowBytes := planeGeometry(pf, plane, f.Width(), f.Height())
	size := rows * rowBytes
	if size == 0 {
		return nil, fmt.Errorf("unsupported pixel format %v", pf)
	}
	if offset+size > len(buf) {
		return nil, fmt.Errorf("plane %d exceeds the frame buffer: %d+%d > %d",
			plane, offset, size, len(buf))
	}
	return buf[offset : offset+size], nil
}

// ensureSoftware replaces a device-resident picture with its host-memory
// copy. No-op for frames decoded in software.
func (f *VideoFrame) ensureSoftware() error {
	if !f.IsHardwareBacked() {
		return nil
	}
	swFrame := astiav.AllocFrame()
	if err := f.inner.raw.TransferHardwareData(swFrame); err != nil {
		swFrame.Free()
		return fmt.Errorf("unable to transfer the frame from the hardware device: %w", err)
	}
	swFrame.SetPts(f.inner.raw.Pts())
	f.inner.raw.Free()
	f.inner.raw = swFrame
	return nil
}

// planeCount returns the number of planes of a pixel format, or 0 when the
// format is not in the table.
func planeCount(pf astiav.PixelFormat) int {
	switch pf {
	case astiav.PixelFormatYuv420P, astiav.PixelFormatYuv422P, astiav.PixelFormatYuv444P,
		astiav.PixelFormatYuv420P10Le, astiav.PixelFormatYuv422P10Le, astiav.PixelFormatYuv444P10Le:
		return 3
	case astiav.PixelFormatNv12, astiav.PixelFormatP010Le:
		return 2
	case astiav.PixelFormatRgba, astiav.PixelFormatBgra:
		return 1
	}
	return 0
}

// planeGeometry returns the dimensions of one plane: width in samples,
// height in rows and meaningful bytes per row. rowBytes is 0 for formats
// not in the table.
func planeGeometry(pf astiav.PixelFormat, plane, width, height int) (planeWidth, planeHeight, rowBytes int) {
	chromaW := (width + 1) / 2
	chromaH := (height + 1) / 2

	switch pf {
	case astiav.PixelFormatYuv420P:
		if plane == 0 {
			return width, height, width
		}
		return chromaW, chromaH, chromaW
	case astiav.PixelFormatYuv422P:
		if plane == 0 {
			return width, height, width
		}
		return chromaW, height, chromaW
	case astiav.PixelFormatYuv444P:
		return width, height, width
	case astiav.PixelFormatYuv420P10Le:
		if plane == 0 {
			return width, height, width * 2
		}
		return chromaW, chromaH, chromaW * 2
	case astiav.PixelFormatYuv422P10Le:
		if plane == 0 {
			return width, height, width * 2
		}
		return chromaW, height, chromaW * 2
	case astiav.PixelFormatYuv444P10Le:
		return width, height, width * 2
	case astiav.PixelFormatNv12:
		if plane == 0 {
			return width, height, width
		}
		// interleaved U+V: one sample is two bytes
		return chromaW, chromaH, chromaW * 2
	case astiav.PixelFormatP010Le:
		if plane == 0 {
			return width, height, width * 2
		}
		return chromaW, chromaH, chromaW * 4
	case astiav.PixelFormatRgba, astiav.PixelFormatBgra:
		return width, height, width * 4
	}
	return width, height, 0
}

// AudioFrame is one decoded chunk of audio samples.
type AudioFrame struct {
	frameBase
}

func (f *AudioFrame) MediaType() astiav.MediaType {
	return astiav.MediaTypeAudio
}

func (f *AudioFrame) IsHardwareBacked() bool {
	return false
}

func (f *AudioFrame) SampleFormat() astiav.SampleFormat {
	return f.inner.raw.SampleFormat()
}

func (f *AudioFrame) SampleRate() int {
	return f.inner.raw.SampleRate()
}

func (f *AudioFrame) NumChannels() int {
	return f.inner.raw.ChannelLayout().Channels()
}

func (f *AudioFrame) NumSamples() int {
	return f.inner.raw.NbSamples()
}

// IsPlanar reports whether each channel occupies its own plane; the
// alternative is one plane with the channels' samples interleaved.
func (f *AudioFrame) IsPlanar() bool {
	return isPlanarSampleFormat(f.inner.raw.SampleFormat())
}

func (f *AudioFrame) IsPacked() bool {
	return !f.IsPlanar()
}

func (f *AudioFrame) NumPlanes() int {
	if f.IsPlanar() {
		return f.NumChannels()
	}
	return 1
}

// PlaneBytes returns the sample data of one plane: the interleaved samples
// of all channels for packed formats, one channel's samples for planar ones.
func (f *AudioFrame) PlaneBytes(plane int) ([]byte, error) {
	if plane < 0 || plane >= f.NumPlanes() {
		return nil, fmt.Errorf("plane %d is out of range [0, %d)", plane, f.NumPlanes())
	}
	bytesPerSample := sampleFormatBytes(f.inner.raw.SampleFormat())
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported sample format %v", f.inner.raw.SampleFormat())
	}

	// align=1: with the default alignment libav rounds the per-plane
	// linesize up to 32 samples, which would shift every plane after the
	// first whenever the sample count is not a multiple of 32
	buf, err := f.inner.raw.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("unable to get the data of the frame: %w", err)
	}

	planeSize := f.NumSamples() * bytesPerSample
	if f.IsPacked() {
		planeSize *= f.NumChannels()
	}
	offset := plane * planeSize
	if offset+planeSize > len(buf) {
		return nil, fmt.Errorf("plane %d exceeds the frame buffer: %d+%d > %d",
			plane, offset, planeSize, len(buf))
	}
	return buf[offset : offset+planeSize], nil
}

func isPlanarSampleFormat(sf astiav.SampleFormat) bool {
	switch sf {
	case astiav.SampleFormatU8P, astiav.SampleFormatS16P, astiav.SampleFormatS32P,
		astiav.SampleFormatS64P, astiav.SampleFormatFltp, astiav.SampleFormatDblp:
		return true
	}
	return false
}

func sampleFormatBytes(sf astiav.SampleFormat) int {
	switch sf {
	case astiav.SampleFormatU8, astiav.SampleFormatU8P:
		return 1
	case astiav.SampleFormatS16, astiav.SampleFormatS16P:
		return 2
	case astiav.SampleFormatS32, astiav.SampleFormatS32P,
		astiav.SampleFormatFlt, astiav.SampleFormatFltp:
		return 4
	case astiav.SampleFormatS64, astiav.SampleFormatS64P,
		astiav.SampleFormatDbl, astiav.SampleFormatDblp:
		return 8
	}
	return 0
}

// SubtitleFrame is one decoded subtitle event.
type SubtitleFrame struct {
	frameBase
}

func (f *SubtitleFrame) MediaType() astiav.MediaType {
	return astiav.MediaTypeSubtitle
}

func (f *SubtitleFrame) IsHardwareBacked() bool {
	return false
}

// Format reports whether the subtitle is textual or a bitmap overlay.
func (f *SubtitleFrame) Format() SubtitleFormat {
	return f.inner.subtitle.format
}

// Text returns the subtitle text, stripped of container framing. Empty for
// bitmap subtitles.
func (f *SubtitleFrame) Text() string {
	return f.inner.subtitle.text
}

// Duration returns how long the subtitle stays on screen, or zero when the
// container does not say.
func (f *SubtitleFrame) Duration() time.Duration {
	return ptsToDuration(f.inner.subtitle.duration, f.inner.timeBase)
}
