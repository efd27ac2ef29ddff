// Package accelerator describes the hardware video-decode backends the
// player may try, and the affinity-ordered configuration that controls in
// which order they are tried.
//
// The package is deliberately independent from the libav bindings: kinds are
// addressed by their libav short names, and the decode path resolves them to
// device types at construction time. This keeps the selection logic isolated
// from the scheduler, so new accelerators are an entry in a table here.
package accelerator

const (
	platformLinux = 1 << iota
	platformWindows
	platformDarwin
)

// Kind identifies one hardware accelerator backend.
type Kind int

const (
	KindInvalid Kind = iota

	// KindVAAPI is the Video Acceleration API ("libva"), initially developed
	// by Intel; reaches Quick Sync on Intel GPUs and UVD/VCE on AMD GPUs.
	KindVAAPI
	// KindVDPAU is the Video Decode and Presentation API for Unix, developed
	// by NVIDIA for Unix/Linux systems.
	KindVDPAU
	// KindCUDA is NVIDIA's NVDEC/NVENC interconnect; libav refers to it as
	// CUDA, and its decoder variants carry the historical "cuvid" suffix.
	KindCUDA
	// KindQSV is Intel Quick Sync Video.
	KindQSV
	// KindVulkan is the vendor-generic Vulkan video decode specification.
	KindVulkan
	// KindDXVA2 is DirectX Video Acceleration over Direct3D 9. Windows only.
	KindDXVA2
	// KindD3D11 is DirectX Video Acceleration over Direct3D 11. Windows only.
	KindD3D11
	// KindD3D12 is DirectX Video Acceleration over Direct3D 12. Windows only.
	KindD3D12
	// KindVideoToolbox is the macOS video decode/encode framework.
	KindVideoToolbox
)

// Name returns the libav short name of the accelerator, as understood by
// av_hwdevice_find_type_by_name.
func (k Kind) Name() string {
	switch k {
	case KindVAAPI:
		return "vaapi"
	case KindVDPAU:
		return "vdpau"
	case KindCUDA:
		return "cuda"
	case KindQSV:
		return "qsv"
	case KindVulkan:
		return "vulkan"
	case KindDXVA2:
		return "dxva2"
	case KindD3D11:
		return "d3d11va"
	case KindD3D12:
		return "d3d12va"
	case KindVideoToolbox:
		return "videotoolbox"
	}
	return ""
}

func (k Kind) String() string {
	if name := k.Name(); name != "" {
		return name
	}
	return "invalid"
}

// VariantSuffix returns the suffix used by codec variants implemented on top
// of this accelerator (e.g. "h264_vaapi"). CUDA decoders keep the historical
// "cuvid" suffix.
func (k Kind) VariantSuffix() string {
	if k == KindCUDA {
		return "cuvid"
	}
	return k.Name()
}

// KindFromName resolves a libav short name back to a Kind.
//
// Returns KindInvalid if the name is not recognized.
func KindFromName(name string) Kind {
	for k := KindVAAPI; k <= KindVideoToolbox; k++ {
		if k.Name() == name {
			return k
		}
	}
	return KindInvalid
}

func (k Kind) platformFlags() int {
	switch k {
	case KindVAAPI:
		return platformLinux | platformWindows
	case KindVDPAU:
		return platformLinux
	case KindCUDA:
		return platformLinux | platformWindows
	case KindQSV:
		return platformLinux | platformWindows
	case KindVulkan:
		return platformLinux | platformWindows
	case KindDXVA2, KindD3D11, KindD3D12:
		return platformWindows
	case KindVideoToolbox:
		return platformDarwin
	}
	return 0
}

func platformFlagOf(goos string) int {
	switch goos {
	case "linux":
		return platformLinux
	case "windows":
		return platformWindows
	case "darwin":
		return platformDarwin
	}
	return 0
}
