package avplayer

import (
	"github.com/asticode/go-astiav"
)

// OutputPixelFormat describes how the decoded video data is organized and
// represented.
//
// This is a _target_ for the decode output: the decoder chooses the first
// format from the configured list it can produce without extra work. Nv12 is
// by far the cheapest for most hardware paths and is the default; Rgba is
// mostly for UI compatibility and roughly doubles the bandwidth; P010le is
// the HDR10 format and is heavier still.
type OutputPixelFormat int

const (
	OutputPixelFormatNv12 OutputPixelFormat = iota
	OutputPixelFormatRgba
	OutputPixelFormatP010le
)

func (f OutputPixelFormat) String() string {
	switch f {
	case OutputPixelFormatNv12:
		return "nv12"
	case OutputPixelFormatRgba:
		return "rgba"
	case OutputPixelFormatP010le:
		return "p010le"
	}
	return "unknown"
}

// OutputPixelFormatFromName resolves a format by its libav name.
func OutputPixelFormatFromName(name string) (OutputPixelFormat, bool) {
	for _, f := range []OutputPixelFormat{
		OutputPixelFormatNv12,
		OutputPixelFormatRgba,
		OutputPixelFormatP010le,
	} {
		if f.String() == name {
			return f, true
		}
	}
	return 0, false
}

func (f OutputPixelFormat) toAstiav() astiav.PixelFormat {
	switch f {
	case OutputPixelFormatNv12:
		return astiav.PixelFormatNv12
	case OutputPixelFormatRgba:
		return astiav.PixelFormatRgba
	case OutputPixelFormatP010le:
		return astiav.PixelFormatP010Le
	}
	return astiav.PixelFormatNone
}

// negotiatePixelFormat selects, among the formats a decoder offers, the one
// matching the highest-priority target. The boolean is false when none of
// the candidates is acceptable.
func negotiatePixelFormat(
	candidates []astiav.PixelFormat,
	targets []astiav.PixelFormat,
) (astiav.PixelFormat, bool) {
	for _, target := range targets {
		for _, candidate := range candidates {
			if candidate == target {
				return candidate, true
			}
		}
	}
	return astiav.PixelFormatNone, false
}
