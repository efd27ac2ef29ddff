package accelerator

import (
	"context"
	"testing"

	"github.com/facebookincubator/go-belt/tool/logger"
	beltzap "github.com/facebookincubator/go-belt/tool/logger/implementation/zap"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetAcceleratorsDeduplicates(t *testing.T) {
	ctx := context.Background()

	cfg := &Config{}
	cfg.setAccelerators(ctx, []Kind{KindCUDA, KindVAAPI, KindCUDA, KindVAAPI}, "linux")
	require.Equal(t, []Kind{KindCUDA, KindVAAPI}, cfg.Accelerators())
}

func TestSetAcceleratorsWarnsAboutInvalidPlatformKinds(t *testing.T) {
	core, recorded := observer.New(zapcore.WarnLevel)
	ctx := logger.CtxWithLogger(context.Background(), beltzap.New(zap.New(core)))

	// A Windows-only affinity on Linux is a warning, not an error: the
	// kinds stay configured (libav just won't resolve them) and decoding
	// degrades to software.
	cfg := &Config{}
	cfg.setAccelerators(ctx, []Kind{KindDXVA2, KindD3D11}, "linux")
	require.Equal(t, []Kind{KindDXVA2, KindD3D11}, cfg.Accelerators())

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Message, "dxva2")
	require.Contains(t, entries[0].Message, "d3d11va")

	// a mixed list with at least one valid kind stays silent
	recorded.TakeAll()
	cfg.setAccelerators(ctx, []Kind{KindDXVA2, KindVAAPI}, "linux")
	require.Empty(t, recorded.All())
}

func TestDefaultAffinityPerPlatform(t *testing.T) {
	require.Equal(t,
		[]Kind{KindVAAPI, KindVDPAU, KindCUDA, KindVulkan},
		defaultAffinity["linux"])
	require.Equal(t,
		[]Kind{KindD3D12, KindD3D11, KindDXVA2, KindCUDA, KindVAAPI},
		defaultAffinity["windows"])
	require.Equal(t,
		[]Kind{KindVideoToolbox},
		defaultAffinity["darwin"])
	require.Empty(t, defaultAffinity["plan9"])
}

func TestDevice(t *testing.T) {
	cfg := DefaultConfig(context.Background())
	require.Empty(t, cfg.Device())
	cfg.SetDevice("/dev/dri/renderD128")
	require.Equal(t, "/dev/dri/renderD128", cfg.Device())
}
