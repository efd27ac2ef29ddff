package avplayer

import (
	"context"
	"errors"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avplayer/pkg/accelerator"
)

func h264StreamInfo() StreamInfo {
	return StreamInfo{
		Index:     0,
		MediaType: astiav.MediaTypeVideo,
		CodecName: "h264",
		codecID:   astiav.CodecIDH264,
	}
}

// fallbackFactory returns a factory with all libav lookups stubbed to "not
// available"; tests override the pieces they exercise.
func fallbackFactory(t *testing.T, kinds ...accelerator.Kind) *videoDecoderFactory {
	ctx := context.Background()
	cfg := accelerator.DefaultConfig(ctx)
	cfg.SetAccelerators(ctx, kinds)

	h264 := astiav.FindDecoder(astiav.CodecIDH264)
	require.NotNil(t, h264)

	return &videoDecoderFactory{
		acceleratorConfig:  cfg,
		targetPixelFormats: []astiav.PixelFormat{astiav.PixelFormatNv12},

		findDecoder: func(codecID astiav.CodecID) *astiav.Codec {
			return h264
		},
		findDecoderByName: func(name string) *astiav.Codec {
			return nil
		},
		findDeviceType: func(name string) astiav.HardwareDeviceType {
			return astiav.HardwareDeviceTypeNone
		},
		findHardwareConfig: func(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
			return astiav.PixelFormatNone, false
		},
		createDeviceContext: func(deviceType astiav.HardwareDeviceType, device string) (*astiav.HardwareDeviceContext, error) {
			t.Fatal("createDeviceContext is not expected to be called")
			return nil, nil
		},
		openDecoder: func(ctx context.Context, d *videoDecoder) error {
			return nil
		},
	}
}

func TestFallbackPicksTheFirstAvailableAccelerator(t *testing.T) {
	fy := fallbackFactory(t, accelerator.KindVAAPI, accelerator.KindCUDA)

	// VAAPI has no device type and no codec variant; CUDA has a native
	// hardware configuration.
	fy.findDeviceType = func(name string) astiav.HardwareDeviceType {
		if name == "cuda" {
			return astiav.HardwareDeviceTypeCUDA
		}
		return astiav.HardwareDeviceTypeNone
	}
	fy.findHardwareConfig = func(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
		return astiav.PixelFormatNv12, true
	}
	fy.createDeviceContext = func(deviceType astiav.HardwareDeviceType, device string) (*astiav.HardwareDeviceContext, error) {
		require.Equal(t, astiav.HardwareDeviceTypeCUDA, deviceType)
		return nil, nil
	}

	d, err := fy.open(context.Background(), h264StreamInfo())
	require.NoError(t, err)
	require.Equal(t, accelerator.KindCUDA, d.Accelerator())
	require.Equal(t, astiav.PixelFormatNv12, d.hardwarePixelFormat)
}

func TestFallbackUsesCodecVariants(t *testing.T) {
	fy := fallbackFactory(t, accelerator.KindCUDA)

	var requested []string
	fy.findDecoderByName = func(name string) *astiav.Codec {
		requested = append(requested, name)
		return astiav.FindDecoder(astiav.CodecIDH264)
	}

	d, err := fy.open(context.Background(), h264StreamInfo())
	require.NoError(t, err)
	require.Equal(t, []string{"h264_cuvid"}, requested)
	require.Equal(t, accelerator.KindCUDA, d.Accelerator())
	// the variant path has no device-side surface
	require.Equal(t, astiav.PixelFormatNone, d.hardwarePixelFormat)
}

func TestFallbackDegradesToSoftware(t *testing.T) {
	fy := fallbackFactory(t, accelerator.KindVAAPI, accelerator.KindVDPAU)

	opens := 0
	fy.openDecoder = func(ctx context.Context, d *videoDecoder) error {
		opens++
		return nil
	}

	d, err := fy.open(context.Background(), h264StreamInfo())
	require.NoError(t, err)
	require.Equal(t, accelerator.KindInvalid, d.Accelerator())
	require.Equal(t, 1, opens)
}

func TestFallbackTreatsDeviceContextFailureAsUnavailable(t *testing.T) {
	fy := fallbackFactory(t, accelerator.KindVAAPI)

	fy.findDeviceType = func(name string) astiav.HardwareDeviceType {
		return astiav.HardwareDeviceTypeCUDA
	}
	fy.findHardwareConfig = func(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
		return astiav.PixelFormatNv12, true
	}
	fy.createDeviceContext = func(deviceType astiav.HardwareDeviceType, device string) (*astiav.HardwareDeviceContext, error) {
		return nil, errors.New("no such device")
	}

	d, err := fy.open(context.Background(), h264StreamInfo())
	require.NoError(t, err)
	require.Equal(t, accelerator.KindInvalid, d.Accelerator())
}

func TestFallbackSkipsDecodersRejectingTheStream(t *testing.T) {
	fy := fallbackFactory(t, accelerator.KindVAAPI)

	fy.findDeviceType = func(name string) astiav.HardwareDeviceType {
		return astiav.HardwareDeviceTypeCUDA
	}
	fy.findHardwareConfig = func(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
		return astiav.PixelFormatNv12, true
	}
	fy.createDeviceContext = func(deviceType astiav.HardwareDeviceType, device string) (*astiav.HardwareDeviceContext, error) {
		return nil, nil
	}
	opens := 0
	fy.openDecoder = func(ctx context.Context, d *videoDecoder) error {
		opens++
		if d.Accelerator() != accelerator.KindInvalid {
			return astiav.ErrInvaliddata
		}
		return nil
	}

	d, err := fy.open(context.Background(), h264StreamInfo())
	require.NoError(t, err)
	require.Equal(t, accelerator.KindInvalid, d.Accelerator())
	require.Equal(t, 2, opens)
}

func TestFallbackPropagatesFatalOpenErrors(t *testing.T) {
	fy := fallbackFactory(t, accelerator.KindVAAPI)

	fy.findDeviceType = func(name string) astiav.HardwareDeviceType {
		return astiav.HardwareDeviceTypeCUDA
	}
	fy.findHardwareConfig = func(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
		return astiav.PixelFormatNv12, true
	}
	fy.createDeviceContext = func(deviceType astiav.HardwareDeviceType, device string) (*astiav.HardwareDeviceContext, error) {
		return nil, nil
	}
	errBoom := errors.New("boom")
	fy.openDecoder = func(ctx context.Context, d *videoDecoder) error {
		return errBoom
	}

	_, err := fy.open(context.Background(), h264StreamInfo())
	require.ErrorIs(t, err, errBoom)
}

func TestOpeningTwicePanics(t *testing.T) {
	d := &baseDecoder{isOpen: true}
	require.Panics(t, func() {
		_ = d.open()
	})
}
