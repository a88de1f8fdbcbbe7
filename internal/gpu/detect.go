package gpu

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// GPUInfo holds detected GPU information
type GPUInfo struct {
	Device    string `json:"device"`     // e.g. "NVIDIA GPU (10de:2684)"
	VRAMTotal int64  `json:"vram_total"` // bytes, 0 if unknown
	VRAMFree  int64  `json:"vram_free"`  // bytes, 0 if unknown
	Driver    string `json:"driver"`     // e.g. "nvidia", "amdgpu", "i915"
}

// CUDA reports whether the GPU is driven by the NVIDIA driver, which is the
// only accelerator CTranslate2 (and so faster-whisper) can use.
func (g *GPUInfo) CUDA() bool {
	return g != nil && g.Driver == "nvidia"
}

var (
	cachedGPU  *GPUInfo
	detectOnce sync.Once
)

// DetectGPU probes the system for a discrete GPU via sysfs.
// Uses sync.Once, safe to call multiple times.
func DetectGPU() *GPUInfo {
	detectOnce.Do(func() {
		cachedGPU = detectGPU("/sys")
	})
	return cachedGPU
}

// ResolveDevice turns the configured faster-whisper device into a concrete
// one. "auto" picks cuda with float16 when an NVIDIA GPU is present and falls
// back to cpu with int8. Explicit devices pass through unchanged.
func ResolveDevice(info *GPUInfo, device, computeType string) (string, string) {
	if device != "auto" && device != "" {
		return device, computeType
	}
	if info.CUDA() {
		if computeType == "" || computeType == "auto" {
			computeType = "float16"
		}
		return "cuda", computeType
	}
	if computeType == "" || computeType == "auto" || computeType == "float16" {
		computeType = "int8"
	}
	return "cpu", computeType
}

func detectGPU(sysRoot string) *GPUInfo {
	info := &GPUInfo{}

	// Scan /sys/class/drm/card* for discrete GPUs
	cards, err := filepath.Glob(filepath.Join(sysRoot, "class", "drm", "card[0-9]*"))
	if err != nil {
		return info
	}

	for _, card := range cards {
		// Skip connectors (cardN-XXX)
		base := filepath.Base(card)
		if strings.Contains(base, "-") {
			continue
		}

		deviceDir := filepath.Join(card, "device")

		driver := ""
		if driverLink, err := os.Readlink(filepath.Join(deviceDir, "driver")); err == nil {
			driver = filepath.Base(driverLink)
		}

		// amdgpu exposes VRAM counters, the NVIDIA driver doesn't
		vramBytes, _ := readSysfsInt(filepath.Join(deviceDir, "mem_info_vram_total"))
		if vramBytes == 0 && driver != "nvidia" {
			continue // integrated GPU or no VRAM info
		}

		info.VRAMTotal = vramBytes
		if vramUsed, err := readSysfsInt(filepath.Join(deviceDir, "mem_info_vram_used")); err == nil && vramUsed > 0 {
			info.VRAMFree = vramBytes - vramUsed
		}
		info.Device = readDeviceName(deviceDir)
		info.Driver = driver

		if driver == "nvidia" {
			break
		}
	}

	return info
}

func readSysfsInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func readDeviceName(deviceDir string) string {
	data, err := os.ReadFile(filepath.Join(deviceDir, "uevent"))
	if err != nil {
		return "Unknown GPU"
	}

	var vendorID, deviceID string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "PCI_ID=") {
			parts := strings.Split(strings.TrimPrefix(line, "PCI_ID="), ":")
			if len(parts) == 2 {
				vendorID = strings.ToLower(parts[0])
				deviceID = strings.ToLower(parts[1])
			}
		}
	}

	switch vendorID {
	case "10de":
		return "NVIDIA GPU (" + vendorID + ":" + deviceID + ")"
	case "1002":
		return "AMD GPU (" + vendorID + ":" + deviceID + ")"
	case "8086":
		return "Intel GPU (" + deviceID + ")"
	case "":
		return "Unknown GPU"
	}
	return "GPU (" + vendorID + ":" + deviceID + ")"
}
