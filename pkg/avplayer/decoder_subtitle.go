package avplayer

import (
	"context"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
)

// SubtitleFormat distinguishes textual subtitle events from bitmap
// overlays.
type SubtitleFormat int

const (
	SubtitleFormatText SubtitleFormat = iota
	SubtitleFormatBitmap
)

func (f SubtitleFormat) String() string {
	switch f {
	case SubtitleFormatText:
		return "text"
	case SubtitleFormatBitmap:
		return "bitmap"
	}
	return "unknown"
}

type subtitleData struct {
	format   SubtitleFormat
	text     string
	pts      int64
	duration int64
}

// subtitleDecoder decodes subtitle packets. Unlike video and audio there is
// no send/receive pipeline inside libav that fits the scratch-frame model,
// and a subtitle packet always maps to at most one event, so WritePacket
// decodes synchronously into a single ready slot and Decode hands the slot
// out.
type subtitleDecoder struct {
	stream  StreamInfo
	format  SubtitleFormat
	ready   *subtitleData
	flushed bool
}

func newSubtitleDecoder(ctx context.Context, stream StreamInfo) (*subtitleDecoder, error) {
	format, ok := subtitleFormatOfCodecID(stream.codecID)
	if !ok {
		return nil, fmt.Errorf("unsupported subtitle codec '%s' (codec ID %v)",
			stream.CodecName, stream.codecID)
	}
	return &subtitleDecoder{
		stream: stream,
		format: format,
	}, nil
}

func (d *subtitleDecoder) WritePacket(ctx context.Context, packet *astiav.Packet) error {
	return d.writePayload(ctx, packet.Data(), packet.Pts(), packet.Duration())
}

func (d *subtitleDecoder) writePayload(ctx context.Context, payload []byte, pts, duration int64) error {
	data := &subtitleData{
		format:   d.format,
		pts:      pts,
		duration: duration,
	}
	if d.format == SubtitleFormatText {
		data.text = extractSubtitleText(d.stream.codecID, payload)
		if data.text == "" {
			// an empty event (e.g. a mov_text "clear subtitle" packet)
			return nil
		}
	} else if len(payload) == 0 {
		return nil
	}

	if d.ready != nil {
		panic(fmt.Sprintf("an undelivered subtitle of stream #%d would have been overwritten",
			d.stream.Index))
	}
	d.ready = data
	return nil
}

func (d *subtitleDecoder) Decode(ctx context.Context, frame *Frame) error {
	if d.ready == nil {
		if d.flushed {
			return astiav.ErrEof
		}
		return astiav.ErrEagain
	}
	frame.subtitle = d.ready
	frame.pts = d.ready.pts
	frame.timeBase = d.stream.timeBase
	frame.stream = d.stream
	frame.hwPixelFormat = astiav.PixelFormatNone
	d.ready = nil
	return nil
}

func (d *subtitleDecoder) Flush(ctx context.Context) error {
	d.flushed = true
	return nil
}

func (d *subtitleDecoder) Close() error {
	d.ready = nil
	return nil
}

func subtitleFormatOfCodecID(codecID astiav.CodecID) (SubtitleFormat, bool) {
	switch codecID {
	case astiav.CodecIDMovText, astiav.CodecIDSubrip, astiav.CodecIDSsa,
		astiav.CodecIDAss, astiav.CodecIDWebvtt, astiav.CodecIDText:
		return SubtitleFormatText, true
	case astiav.CodecIDDvdSubtitle, astiav.CodecIDDvbSubtitle,
		astiav.CodecIDHdmvPgsSubtitle, astiav.CodecIDXsub:
		return SubtitleFormatBitmap, true
	}
	return 0, false
}

// extractSubtitleText strips the codec-specific framing off a subtitle
// packet payload, leaving the displayed text.
func extractSubtitleText(codecID astiav.CodecID, payload []byte) string {
	switch codecID {
	case astiav.CodecIDMovText:
		// mov_text packets start with a big-endian 16-bit text length.
		if len(payload) < 2 {
			return ""
		}
		length := int(payload[0])<<8 | int(payload[1])
		if length > len(payload)-2 {
			length = len(payload) - 2
		}
		return string(payload[2 : 2+length])
	case astiav.CodecIDAss, astiav.CodecIDSsa:
		return assDialogueText(string(payload))
	default:
		return strings.TrimRight(string(payload), "\x00\r\n")
	}
}

// assDialogueText extracts the text field of an ASS dialogue event:
// "ReadOrder,Layer,Style,Name,MarginL,MarginR,MarginV,Effect,Text". Only
// the last field may itself contain commas.
func assDialogueText(event string) string {
	rest := strings.TrimRight(event, "\x00\r\n")
	for i := 0; i < 8; i++ {
		_, tail, found := strings.Cut(rest, ",")
		if !found {
			return rest
		}
		rest = tail
	}
	return rest
}
