package accelerator

import (
	"context"
	"runtime"
	"slices"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// The default affinity per platform, ordered by flexibility, performance and
// availability of decoders. The table is consulted at configuration
// construction time, not at compile time, so a single build carries all of
// them. VAAPI is listed for Windows because it is supported there nowadays,
// even though most libav builds do not enable it.
var defaultAffinity = map[string][]Kind{
	"linux":   {KindVAAPI, KindVDPAU, KindCUDA, KindVulkan},
	"windows": {KindD3D12, KindD3D11, KindDXVA2, KindCUDA, KindVAAPI},
	"darwin":  {KindVideoToolbox},
}

// Config controls which hardware accelerators the player tries when opening
// a video decoder, and in which order.
//
// The config is mutable through its setters until the player is built; the
// decode path only reads it.
type Config struct {
	affinity     []Kind
	targetDevice string
}

// DefaultConfig returns a Config with the default accelerator affinity for
// the running platform.
func DefaultConfig(ctx context.Context) *Config {
	cfg := &Config{}
	cfg.SetAccelerators(ctx, defaultAffinity[runtime.GOOS])
	return cfg
}

// Accelerators returns the enabled accelerators in affinity order.
func (cfg *Config) Accelerators() []Kind {
	return cfg.affinity
}

// SetAccelerators replaces the affinity list.
//
// Order matters: the player tries the accelerators in the order given and
// uses the first one that works. Duplicates are removed, keeping the first
// occurrence. If none of the supplied accelerators is valid on the running
// platform this logs a warning, but it is not an error: decoding degrades
// to software.
func (cfg *Config) SetAccelerators(ctx context.Context, kinds []Kind) {
	cfg.setAccelerators(ctx, kinds, runtime.GOOS)
}

func (cfg *Config) setAccelerators(ctx context.Context, kinds []Kind, goos string) {
	platform := platformFlagOf(goos)

	anyValid := platform == 0
	for _, kind := range kinds {
		if kind.platformFlags()&platform != 0 {
			anyValid = true
			break
		}
	}
	if !anyValid {
		logger.Warnf(ctx,
			"none of the configured accelerators %v is available on '%s', only software decoding will be used",
			kinds, goos,
		)
	}

	affinity := make([]Kind, 0, len(kinds))
	for _, kind := range kinds {
		if !slices.Contains(affinity, kind) {
			affinity = append(affinity, kind)
		}
	}
	cfg.affinity = affinity
}

// SetDevice pins the physical device used for subsequent accelerator
// creation attempts (e.g. to select a discrete GPU over an integrated one).
// The string is accelerator-specific, e.g. "/dev/dri/renderD128" for VAAPI.
func (cfg *Config) SetDevice(device string) {
	cfg.targetDevice = device
}

// Device returns the pinned physical device, or an empty string when the
// accelerator default is used.
func (cfg *Config) Device() string {
	return cfg.targetDevice
}
