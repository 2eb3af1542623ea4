package platform

import (
	"context"
	"runtime"
	"strings"
)

// Platform holds the detected OS family and architecture.
type Platform struct {
	OS   string // linux, macos, wsl, windows
	Arch string // amd64, arm64, armv7
}

// Detect probes the runtime environment and returns platform info.
func Detect(ctx context.Context, runner CommandRunner) Platform {
	p := Platform{
		OS:   "unknown",
		Arch: normalizeArch(runtime.GOARCH),
	}

	switch runtime.GOOS {
	case "linux":
		p.OS = "linux"
		// WSL kernels identify as Microsoft builds.
		out, err := runner.Output(ctx, "cat", "/proc/version")
		if err == nil && containsCI(string(out), "microsoft") {
			p.OS = "wsl"
		}
	case "darwin":
		p.OS = "macos"
	case "windows":
		p.OS = "windows"
	}

	return p
}

func normalizeArch(goarch string) string {
	switch goarch {
	case "arm":
		return "armv7"
	default:
		return goarch
	}
}

func containsCI(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsLinux returns true if the platform is linux or WSL.
func (p Platform) IsLinux() bool {
	return p.OS == "linux" || p.OS == "wsl"
}
