package avplayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/avplayer/pkg/accelerator"
)

// videoDecoder is a baseDecoder that may be backed by a hardware
// accelerator. When it is, decoded frames reference device memory and carry
// the device pixel format so that accessing their bytes transparently
// downloads them.
type videoDecoder struct {
	baseDecoder
	accel                 accelerator.Kind
	hardwareDeviceContext *astiav.HardwareDeviceContext
	hardwarePixelFormat   astiav.PixelFormat
}

// Accelerator reports which hardware backend decodes this stream;
// accelerator.KindInvalid means software decoding.
func (d *videoDecoder) Accelerator() accelerator.Kind {
	return d.accel
}

func (d *videoDecoder) Decode(ctx context.Context, frame *Frame) error {
	if err := d.baseDecoder.Decode(ctx, frame); err != nil {
		return err
	}
	frame.hwPixelFormat = d.hardwarePixelFormat
	return nil
}

// videoDecoderFactory builds the video decoder for a stream, walking the
// accelerator affinity list and falling back to software decoding when no
// accelerator works out.
//
// The libav lookups are function fields so the selection logic is testable
// without decode hardware; newVideoDecoderFactory fills in the real ones.
type videoDecoderFactory struct {
	src                *InputSource
	acceleratorConfig  *accelerator.Config
	targetPixelFormats []astiav.PixelFormat

	findDecoder         func(codecID astiav.CodecID) *astiav.Codec
	findDecoderByName   func(name string) *astiav.Codec
	findDeviceType      func(name string) astiav.HardwareDeviceType
	findHardwareConfig  func(codec *astiav.Codec, deviceType astiav.HardwareDeviceType) (astiav.PixelFormat, bool)
	createDeviceContext func(deviceType astiav.HardwareDeviceType, device string) (*astiav.HardwareDeviceContext, error)
	openDecoder         func(ctx context.Context, d *videoDecoder) error
}

func newVideoDecoderFactory(
	src *InputSource,
	acceleratorConfig *accelerator.Config,
	targetPixelFormats []astiav.PixelFormat,
) *videoDecoderFactory {
	fy := &videoDecoderFactory{
		src:                src,
		acceleratorConfig:  acceleratorConfig,
		targetPixelFormats: targetPixelFormats,

		findDecoder:       astiav.FindDecoder,
		findDecoderByName: astiav.FindDecoderByName,
		findDeviceType:    astiav.FindHardwareDeviceTypeByName,
	}
	fy.findHardwareConfig = findNativeHardwareConfig
	fy.createDeviceContext = func(
		deviceType astiav.HardwareDeviceType,
		device string,
	) (*astiav.HardwareDeviceContext, error) {
		return astiav.CreateHardwareDeviceContext(deviceType, device, nil, 0)
	}
	fy.openDecoder = fy.openDecoderContext
	return fy
}

// findNativeHardwareConfig scans the codec's hardware configurations for one
// reachable through a device context of the given type, and returns the
// pixel format decoded frames will be in on the device.
func findNativeHardwareConfig(
	codec *astiav.Codec,
	deviceType astiav.HardwareDeviceType,
) (astiav.PixelFormat, bool) {
	for _, config := range codec.HardwareConfigs() {
		if !config.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) {
			continue
		}
		if config.HardwareDeviceType() != deviceType {
			continue
		}
		return config.PixelFormat(), true
	}
	return astiav.PixelFormatNone, false
}

// open builds the decoder for the stream: accelerators are tried in
// affinity order, and the first one that opens wins; when none does, the
// stream is decoded in software.
func (fy *videoDecoderFactory) open(
	ctx context.Context,
	stream StreamInfo,
) (*videoDecoder, error) {
	for _, kind := range fy.acceleratorConfig.Accelerators() {
		d, err := fy.tryAccelerator(ctx, stream, kind)
		if err != nil {
			return nil, err
		}
		if d == nil {
			continue
		}
		logger.Infof(ctx, "decoding stream #%d (%s) using the '%s' accelerator",
			stream.Index, stream.CodecName, kind)
		return d, nil
	}

	logger.Infof(ctx, "no hardware accelerator is available for stream #%d (%s), decoding in software",
		stream.Index, stream.CodecName)
	d := &videoDecoder{hardwarePixelFormat: astiav.PixelFormatNone}
	d.stream = stream
	d.codec = fy.findDecoder(stream.codecID)
	if d.codec == nil {
		return nil, fmt.Errorf("unable to find a codec using codec ID %v", stream.codecID)
	}
	if err := fy.openDecoder(ctx, d); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("unable to open a software decoder for stream #%d: %w",
			stream.Index, err)
	}
	return d, nil
}

// tryAccelerator attempts to build a decoder on one accelerator. A nil
// decoder with a nil error means the accelerator is unavailable for this
// stream and the next one should be tried.
func (fy *videoDecoderFactory) tryAccelerator(
	ctx context.Context,
	stream StreamInfo,
	kind accelerator.Kind,
) (*videoDecoder, error) {
	logger.Debugf(ctx, "trying the '%s' accelerator for stream #%d (%s)",
		kind, stream.Index, stream.CodecName)

	codec := fy.findDecoder(stream.codecID)
	if codec == nil {
		return nil, fmt.Errorf("unable to find a codec using codec ID %v", stream.codecID)
	}

	hwPixelFormat := astiav.PixelFormatNone
	hasNativeConfig := false
	deviceType := fy.findDeviceType(kind.Name())
	if deviceType != astiav.HardwareDeviceTypeNone {
		hwPixelFormat, hasNativeConfig = fy.findHardwareConfig(codec, deviceType)
	}

	if !hasNativeConfig {
		// Some accelerators are not exposed as hardware configurations of
		// the generic codec, but as separate decoder implementations
		// (e.g. "h264_cuvid").
		variantName := stream.CodecName + "_" + kind.VariantSuffix()
		variant := fy.findDecoderByName(variantName)
		if variant == nil {
			logger.Debugf(ctx, "the '%s' accelerator is not supported for '%s', skipping",
				kind, stream.CodecName)
			return nil, nil
		}
		logger.Debugf(ctx, "using the codec variant '%s'", variantName)
		codec = variant
	}

	d := &videoDecoder{
		accel:               kind,
		hardwarePixelFormat: hwPixelFormat,
	}
	d.stream = stream
	d.codec = codec

	if hasNativeConfig {
		deviceContext, err := fy.createDeviceContext(deviceType, fy.acceleratorConfig.Device())
		if err != nil {
			logger.Warnf(ctx, "unable to create a '%s' device context: %v; skipping the accelerator",
				kind, err)
			return nil, nil
		}
		d.hardwareDeviceContext = deviceContext
	}

	if err := fy.openDecoder(ctx, d); err != nil {
		_ = d.Close()
		if errors.Is(err, astiav.ErrInvaliddata) {
			logger.Warnf(ctx, "the '%s' decoder rejected the stream data: %v; skipping the accelerator",
				kind, err)
			return nil, nil
		}
		return nil, fmt.Errorf("unable to open a '%s' decoder for stream #%d: %w",
			kind, stream.Index, err)
	}
	return d, nil
}

// openDecoderContext is the production openDecoder: allocates the codec
// context, attaches the device context (if any) and opens.
func (fy *videoDecoderFactory) openDecoderContext(ctx context.Context, d *videoDecoder) error {
	if err := d.allocContext(fy.src); err != nil {
		return err
	}

	if d.hardwareDeviceContext != nil {
		d.codecContext.SetHardwareDeviceContext(d.hardwareDeviceContext)
		acceptable := append(
			[]astiav.PixelFormat{d.hardwarePixelFormat},
			fy.targetPixelFormats...,
		)
		accel := d.accel
		d.codecContext.SetPixelFormatCallback(func(candidates []astiav.PixelFormat) astiav.PixelFormat {
			format, ok := negotiatePixelFormat(candidates, acceptable)
			if !ok {
				logger.Errorf(ctx, "unable to find an appropriate pixel format among %v for the '%s' accelerator",
					candidates, accel)
				return astiav.PixelFormatNone
			}
			return format
		})
	}

	return d.open()
}
