package adb

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// StateDevice is the adb state of a device that is online and authorized
const StateDevice = "device"

// Device is one entry reported by adb
type Device struct {
	Serial      string `json:"serial"`
	State       string `json:"state"` // device, offline, unauthorized, authorizing, recovery, ...
	Model       string `json:"model,omitempty"`
	Product     string `json:"product,omitempty"`
	DeviceName  string `json:"device,omitempty"`
	TransportID string `json:"transportId,omitempty"`
	IsEmulator  bool   `json:"isEmulator"`
}

// Online reports whether adb can talk to the device
func (d Device) Online() bool {
	return d.State == StateDevice
}

// ParseDeviceList parses the payload of a track-devices frame or the output of `adb devices -l`.
// Each line is `serial<ws>state[ key:value...]`.
func ParseDeviceList(output string) []Device {
	var devices []Device

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices attached") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		d := Device{
			Serial: parts[0],
			State:  parts[1],
		}

		for _, p := range parts[2:] {
			kv := strings.SplitN(p, ":", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "model":
				d.Model = kv[1]
			case "product":
				d.Product = kv[1]
			case "device":
				d.DeviceName = kv[1]
			case "transport_id":
				d.TransportID = kv[1]
			}
		}

		d.IsEmulator = isEmulatorSerial(d.Serial)
		devices = append(devices, d)
	}

	return devices
}

// isEmulatorSerial reports whether serial names a local emulator console
func isEmulatorSerial(serial string) bool {
	return strings.HasPrefix(serial, "emulator-")
}

// readFrame reads one track-devices frame: 4 hex digits of length, then the payload.
// An empty payload means no devices are attached.
func readFrame(r *bufio.Reader) ([]Device, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length, err := strconv.ParseUint(string(header[:]), 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid track-devices length %q: %w", string(header[:]), err)
	}
	if length == 0 {
		return []Device{}, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	devices := ParseDeviceList(string(payload))
	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}
