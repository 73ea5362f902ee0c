// Package deviceid derives a stable, host-bound identifier used to bind a
// license activation to a specific machine. It is adapted from the
// teacher's hardware fingerprinting but generalized for the spec's
// device_id concept rather than a hardware-lock feature: the same
// derivation is used at activation and must be reproduced identically on
// every subsequent validation for the binding check to hold.
package deviceid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
)

// HostInfo contains the raw host attributes used to derive a device ID.
type HostInfo struct {
	MachineID    string
	Hostname     string
	OS           string
	Arch         string
	MACAddresses []string
	Username     string
}

// Collect gathers host identification data from the current machine.
func Collect() HostInfo {
	info := HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if u := currentUsername(); u != "" {
		info.Username = u
	}

	info.MachineID = machineID()
	info.MACAddresses = macAddresses()

	return info
}

// Derive computes the default device identifier: SHA-256 of the host's
// stable attributes, truncated to 32 hex characters (spec §6).
func Derive() (string, error) {
	info := Collect()

	if info.MachineID == "" && info.Hostname == "" && len(info.MACAddresses) == 0 {
		return "", fmt.Errorf("deviceid: no stable host attributes available")
	}

	data := fmt.Sprintf("%s|%s|%s|%s|%v",
		info.MachineID, info.Hostname, info.OS, info.Arch, info.MACAddresses)

	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:32], nil
}

// DeriveWithFallback never fails: inside a Kubernetes pod it prefers a
// Kubernetes-derived identity, otherwise (or if that is empty) it uses
// Derive, then falls back to a hostname hash, and only returns "" if
// nothing at all is available (embedding applications should treat that
// as "unknown").
func DeriveWithFallback() string {
	if IsKubernetes() {
		if id := kubernetesDeviceID(); id != "" {
			return id
		}
	}

	if id, err := Derive(); err == nil && id != "" {
		return id
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		sum := sha256.Sum256([]byte(hostname))
		return "host-" + hex.EncodeToString(sum[:16])
	}

	return ""
}

func machineID() string {
	switch runtime.GOOS {
	case "linux":
		return linuxMachineID()
	case "darwin":
		return darwinMachineID()
	case "windows":
		return windowsMachineID()
	default:
		return ""
	}
}

func linuxMachineID() string {
	for _, path := range []string{
		"/etc/machine-id",
		"/var/lib/dbus/machine-id",
		"/sys/class/dmi/id/product_uuid",
	} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	return ""
}

func darwinMachineID() string {
	cmd := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				return strings.Trim(strings.TrimSpace(parts[1]), "\"")
			}
		}
	}
	return ""
}

func windowsMachineID() string {
	cmd := exec.Command("reg", "query",
		`HKEY_LOCAL_MACHINE\SOFTWARE\Microsoft\Cryptography`, "/v", "MachineGuid")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "MachineGuid") {
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				return fields[2]
			}
		}
	}
	return ""
}

func macAddresses() []string {
	var macs []string

	interfaces, err := net.Interfaces()
	if err != nil {
		return macs
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if strings.HasPrefix(mac, "02:42:") || // docker0 bridge
			strings.HasPrefix(mac, "00:00:00:") ||
			strings.HasPrefix(mac, "fe:") {
			continue
		}
		macs = append(macs, mac)
	}

	sort.Strings(macs)
	return macs
}

func currentUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return os.Getenv("USERNAME")
}

// IsKubernetes reports whether the process appears to be running inside a
// Kubernetes pod.
func IsKubernetes() bool {
	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return true
	}
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

func kubernetesDeviceID() string {
	var parts []string

	if pod := os.Getenv("POD_NAME"); pod != "" {
		parts = append(parts, pod)
	}
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		parts = append(parts, ns)
	}
	if node := os.Getenv("NODE_NAME"); node != "" {
		parts = append(parts, node)
	}
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		parts = append(parts, string(data))
	}

	if len(parts) == 0 {
		return ""
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "k8s-" + hex.EncodeToString(sum[:12])
}
