package avplayer

import (
	"context"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
)

func textSubtitleDecoder() *subtitleDecoder {
	return &subtitleDecoder{
		stream: StreamInfo{Index: 2, MediaType: astiav.MediaTypeSubtitle},
		format: SubtitleFormatText,
	}
}

func TestSubtitleDecoderReadySlot(t *testing.T) {
	ctx := context.Background()
	d := textSubtitleDecoder()

	frame := &Frame{}
	require.ErrorIs(t, d.Decode(ctx, frame), astiav.ErrEagain)

	require.NoError(t, d.writePayload(ctx, []byte("hello"), 100, 30))
	require.NoError(t, d.Decode(ctx, frame))
	require.Equal(t, "hello", frame.subtitle.text)
	require.Equal(t, int64(100), frame.pts)

	// the slot is single-use
	require.ErrorIs(t, d.Decode(ctx, frame), astiav.ErrEagain)
}

func TestSubtitleDecoderOverwritePanics(t *testing.T) {
	ctx := context.Background()
	d := textSubtitleDecoder()

	require.NoError(t, d.writePayload(ctx, []byte("first"), 0, 0))
	require.Panics(t, func() {
		_ = d.writePayload(ctx, []byte("second"), 10, 0)
	})
}

func TestSubtitleDecoderIgnoresEmptyEvents(t *testing.T) {
	ctx := context.Background()
	d := textSubtitleDecoder()

	require.NoError(t, d.writePayload(ctx, nil, 0, 0))
	require.ErrorIs(t, d.Decode(ctx, &Frame{}), astiav.ErrEagain)
}

func TestSubtitleDecoderDrainsToEOF(t *testing.T) {
	ctx := context.Background()
	d := textSubtitleDecoder()

	require.NoError(t, d.writePayload(ctx, []byte("bye"), 0, 0))
	require.NoError(t, d.Flush(ctx))

	// the buffered event still comes out after the flush
	frame := &Frame{}
	require.NoError(t, d.Decode(ctx, frame))
	require.Equal(t, "bye", frame.subtitle.text)

	require.ErrorIs(t, d.Decode(ctx, frame), astiav.ErrEof)
}

func TestExtractSubtitleText(t *testing.T) {
	t.Run("mov_text", func(t *testing.T) {
		payload := []byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
		require.Equal(t, "hello", extractSubtitleText(astiav.CodecIDMovText, payload))
	})
	t.Run("mov_text_truncated_length", func(t *testing.T) {
		payload := []byte{0x00, 0xFF, 'h', 'i'}
		require.Equal(t, "hi", extractSubtitleText(astiav.CodecIDMovText, payload))
	})
	t.Run("mov_text_empty", func(t *testing.T) {
		require.Equal(t, "", extractSubtitleText(astiav.CodecIDMovText, []byte{0x00}))
	})
	t.Run("ass_dialogue", func(t *testing.T) {
		event := "1,0,Default,,0,0,0,,Hello, world"
		require.Equal(t, "Hello, world", extractSubtitleText(astiav.CodecIDAss, []byte(event)))
	})
	t.Run("plain_text_trims_framing", func(t *testing.T) {
		require.Equal(t, "line", extractSubtitleText(astiav.CodecIDSubrip, []byte("line\r\n\x00")))
	})
}

func TestSubtitleFormatOfCodecID(t *testing.T) {
	format, ok := subtitleFormatOfCodecID(astiav.CodecIDSubrip)
	require.True(t, ok)
	require.Equal(t, SubtitleFormatText, format)

	format, ok = subtitleFormatOfCodecID(astiav.CodecIDHdmvPgsSubtitle)
	require.True(t, ok)
	require.Equal(t, SubtitleFormatBitmap, format)

	_, ok = subtitleFormatOfCodecID(astiav.CodecIDH264)
	require.False(t, ok)
}
