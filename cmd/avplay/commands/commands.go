package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/avplayer/pkg/accelerator"
	"github.com/xaionaro-go/avplayer/pkg/astiavlogger"
	"github.com/xaionaro-go/avplayer/pkg/avplayer"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use:  os.Args[0] + " <url>",
		Args: cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			l := logger.FromCtx(ctx).WithLevel(LoggerLevel)
			ctx = logger.CtxWithLogger(ctx, l)
			cmd.SetContext(ctx)
			logger.Debugf(ctx, "log-level: %v", LoggerLevel)

			astiav.SetLogLevel(astiavlogger.LogLevelToAstiav(l.Level()))
			astiav.SetLogCallback(astiavlogger.Callback(l))
		},
		RunE: play,
	}

	LoggerLevel = logger.LevelWarning

	Accelerators   []string
	Device         string
	PixelFormats   []string
	VideoStream    int
	AudioStream    int
	SubtitleStream int
)

func init() {
	Root.PersistentFlags().Var(&LoggerLevel, "log-level", "")
	Root.Flags().StringSliceVar(&Accelerators, "accelerators", nil, "hardware accelerators to try, in order (e.g. 'vaapi,cuda'); default: the platform affinity")
	Root.Flags().StringVar(&Device, "device", "", "the device to create accelerator contexts on (e.g. '/dev/dri/renderD128')")
	Root.Flags().StringSliceVar(&PixelFormats, "pixel-formats", nil, "acceptable video output pixel formats, in priority order (nv12, rgba, p010le)")
	Root.Flags().IntVar(&VideoStream, "video-stream", -1, "the index of the video stream to decode; default: auto-select")
	Root.Flags().IntVar(&AudioStream, "audio-stream", -1, "the index of the audio stream to decode; default: auto-select")
	Root.Flags().IntVar(&SubtitleStream, "subtitle-stream", -1, "the index of the subtitle stream to decode; default: auto-select")
}

func play(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := args[0]

	src, err := avplayer.OpenInputSource(ctx, url)
	if err != nil {
		return fmt.Errorf("unable to open '%s': %w", url, err)
	}

	builder := avplayer.NewPlayerBuilder(src)

	if len(Accelerators) > 0 {
		kinds := make([]accelerator.Kind, 0, len(Accelerators))
		for _, name := range Accelerators {
			kind := accelerator.KindFromName(name)
			if kind == accelerator.KindInvalid {
				return fmt.Errorf("unknown accelerator '%s'", name)
			}
			kinds = append(kinds, kind)
		}
		cfg := accelerator.DefaultConfig(ctx)
		cfg.SetAccelerators(ctx, kinds)
		if Device != "" {
			cfg.SetDevice(Device)
		}
		builder = builder.WithAcceleratorConfig(cfg)
	}

	if len(PixelFormats) > 0 {
		formats := make([]avplayer.OutputPixelFormat, 0, len(PixelFormats))
		for _, name := range PixelFormats {
			format, ok := avplayer.OutputPixelFormatFromName(name)
			if !ok {
				return fmt.Errorf("unknown pixel format '%s'", name)
			}
			formats = append(formats, format)
		}
		builder = builder.WithTargetPixelFormats(formats...)
	}

	if VideoStream >= 0 {
		builder = builder.WithVideoStream(VideoStream)
	}
	if AudioStream >= 0 {
		builder = builder.WithAudioStream(AudioStream)
	}
	if SubtitleStream >= 0 {
		builder = builder.WithSubtitleStream(SubtitleStream)
	}

	p, err := builder.Build(ctx)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("unable to build a player for '%s': %w", url, err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the player: %v", err)
		}
	}()

	if err := p.Play(ctx); err != nil {
		return fmt.Errorf("unable to start playback: %w", err)
	}

	startedAt := time.Now()
	for {
		frame, err := p.ProcessNextFrame(ctx)
		if err != nil {
			if errors.Is(err, avplayer.ErrEndOfStream) {
				break
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("unable to get the next frame: %w", err)
		}
		logFrame(ctx, frame)
		if err := frame.Close(); err != nil {
			logger.Errorf(ctx, "unable to close a frame: %v", err)
		}
	}

	stats := p.Statistics()
	logger.Infof(ctx,
		"finished in %v: %d packet(s) read in %v; %d frame(s) decoded in %v (%d video, %d audio, %d subtitle)",
		time.Since(startedAt),
		stats.PacketsRead, stats.PacketReadDuration,
		stats.FramesDeliveredTotal, stats.FramesDecodedDuration,
		stats.VideoFramesDecoded, stats.AudioFramesDecoded, stats.SubtitleFramesDecoded,
	)
	return nil
}

func logFrame(ctx context.Context, frame avplayer.DecodedFrame) {
	switch frame := frame.(type) {
	case *avplayer.VideoFrame:
		logger.Debugf(ctx, "video frame: pts=%v %dx%d %v hw=%t",
			frame.PTS(), frame.Width(), frame.Height(), frame.PixelFormat(), frame.IsHardwareBacked())
	case *avplayer.AudioFrame:
		logger.Debugf(ctx, "audio frame: pts=%v %d sample(s) x%d channel(s) %v",
			frame.PTS(), frame.NumSamples(), frame.NumChannels(), frame.SampleFormat())
	case *avplayer.SubtitleFrame:
		logger.Debugf(ctx, "subtitle: pts=%v format=%v text=%q",
			frame.PTS(), frame.Format(), frame.Text())
	default:
		logger.Debugf(ctx, "frame: pts=%v kind=%v", frame.PTS(), frame.MediaType())
	}
}
