package hwid

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/KevinTCoughlin/licensegate/internal/platform"
)

// PreferredInterfaces is the ordered list of interface names tried for the
// MAC address. The first present interface with a hardware address wins.
var PreferredInterfaces = []string{"en0", "en1", "eth0", "eth1", "eno1", "wlan0", "Ethernet", "Wi-Fi"}

// Interfaces with these name prefixes are virtual and come and go with
// containers, VPNs and hypervisors.
var virtualPrefixes = []string{"lo", "docker", "veth", "br-", "virbr", "vmnet", "vboxnet", "tun", "tap", "utun", "awdl", "llw", "bridge", "zt", "tailscale", "wg"}

var ioregSerial = regexp.MustCompile(`"IOPlatformSerialNumber"\s*=\s*"([^"]+)"`)

// Values firmware vendors ship in unset DMI fields.
var bogusDMI = map[string]bool{
	"":                       true,
	"none":                   true,
	"default string":         true,
	"to be filled by o.e.m.": true,
	"system serial number":   true,
	"0":                      true,
}

var errUnavailable = errors.New("not available on this platform")

// SystemSource reads machine facts from the running OS.
type SystemSource struct {
	runner   platform.CommandRunner
	platform platform.Platform

	readFile   func(string) ([]byte, error)
	interfaces func() ([]net.Interface, error)
	hostname   func() (string, error)
}

// NewSystemSource creates a Source for the detected platform.
func NewSystemSource(ctx context.Context, runner platform.CommandRunner) *SystemSource {
	return &SystemSource{
		runner:     runner,
		platform:   platform.Detect(ctx, runner),
		readFile:   os.ReadFile,
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
	}
}

// Serial returns the platform serial number.
func (s *SystemSource) Serial(ctx context.Context) (string, error) {
	switch s.platform.OS {
	case "macos":
		out, err := s.runner.Output(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		if err != nil {
			return "", err
		}
		return parseIORegSerial(out)
	case "linux":
		return s.dmi("product_serial", "board_serial")
	case "windows", "wsl":
		return s.powershell(ctx, "(Get-CimInstance Win32_BIOS).SerialNumber")
	}
	return "", errUnavailable
}

// Model returns the hardware model identifier.
func (s *SystemSource) Model(ctx context.Context) (string, error) {
	switch s.platform.OS {
	case "macos":
		out, err := s.runner.Output(ctx, "sysctl", "-n", "hw.model")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	case "linux":
		if model, err := s.dmi("product_name"); err == nil {
			return model, nil
		}
		// Single-board computers have no DMI table.
		data, err := s.readFile("/proc/device-tree/model")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(strings.TrimRight(string(data), "\x00")), nil
	case "windows", "wsl":
		return s.powershell(ctx, "(Get-CimInstance Win32_ComputerSystem).Model")
	}
	return "", errUnavailable
}

// MAC returns the address of the primary network interface.
func (s *SystemSource) MAC() (string, error) {
	ifaces, err := s.interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}
	mac, ok := pickMAC(ifaces)
	if !ok {
		return "", errors.New("no physical network interface found")
	}
	return mac, nil
}

// Name returns the user-facing computer name.
func (s *SystemSource) Name(ctx context.Context) (string, error) {
	if s.platform.OS == "macos" {
		if out, err := s.runner.Output(ctx, "scutil", "--get", "ComputerName"); err == nil {
			if name := strings.TrimSpace(string(out)); name != "" {
				return name, nil
			}
		}
	}
	return s.hostname()
}

func (s *SystemSource) dmi(fields ...string) (string, error) {
	var lastErr error = errUnavailable
	for _, field := range fields {
		data, err := s.readFile("/sys/class/dmi/id/" + field)
		if err != nil {
			lastErr = err
			continue
		}
		v := strings.TrimSpace(string(data))
		if bogusDMI[strings.ToLower(v)] {
			lastErr = fmt.Errorf("dmi %s unset", field)
			continue
		}
		return v, nil
	}
	return "", lastErr
}

func (s *SystemSource) powershell(ctx context.Context, expr string) (string, error) {
	bin := "powershell"
	if s.platform.OS == "wsl" {
		bin = "powershell.exe"
	}
	if !s.runner.Exists(bin) {
		return "", fmt.Errorf("%s: %w", bin, errUnavailable)
	}
	out, err := s.runner.Output(ctx, bin, "-NoProfile", "-NonInteractive", "-Command", expr)
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(out))
	if bogusDMI[strings.ToLower(v)] {
		return "", errors.New("firmware value unset")
	}
	return v, nil
}

func parseIORegSerial(out []byte) (string, error) {
	m := ioregSerial.FindSubmatch(out)
	if m == nil {
		return "", errors.New("IOPlatformSerialNumber not found")
	}
	return string(m[1]), nil
}

// pickMAC selects the primary interface's MAC: the first preferred name
// present, otherwise the first physical interface by name.
func pickMAC(ifaces []net.Interface) (string, bool) {
	byName := make(map[string]net.Interface, len(ifaces))
	var candidates []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || !usableAddr(iface.HardwareAddr) {
			continue
		}
		byName[iface.Name] = iface
		if !isVirtual(iface.Name) {
			candidates = append(candidates, iface)
		}
	}

	for _, name := range PreferredInterfaces {
		if iface, ok := byName[name]; ok {
			return iface.HardwareAddr.String(), true
		}
	}

	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].Name < candidates[b].Name })
	return candidates[0].HardwareAddr.String(), true
}

func usableAddr(addr net.HardwareAddr) bool {
	if len(addr) == 0 {
		return false
	}
	return addr.String() != UnknownMAC
}

func isVirtual(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
