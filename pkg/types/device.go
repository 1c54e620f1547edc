package types

// Platform identifiers used in device keys and history rows.
const (
	PlatformAndroid = "android"
	PlatformApple   = "apple"
)

// Device kinds used in device keys and history rows.
const (
	KindDevice    = "device"
	KindEmulator  = "emulator"
	KindSimulator = "simulator"
)

// AndroidDevice represents an online Android device or emulator
type AndroidDevice struct {
	Serial      string `json:"serial"`
	State       string `json:"state"`
	Model       string `json:"model,omitempty"`
	Product     string `json:"product,omitempty"`
	TransportID string `json:"transportId,omitempty"`
	IsEmulator  bool   `json:"isEmulator"`
}

// AppleDevice represents a connected physical Apple device
type AppleDevice struct {
	Identifier   string `json:"identifier"`
	Name         string `json:"name"`
	Model        string `json:"model,omitempty"`
	Platform     string `json:"platform,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	OSVersion    string `json:"osVersion,omitempty"`
	Interface    string `json:"interface,omitempty"` // usb, network
}

// AppleSimulator represents a booted Apple simulator
type AppleSimulator struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Model      string `json:"model,omitempty"`
	Platform   string `json:"platform,omitempty"`
	State      string `json:"state"`
}

// ConnectedDevicesSnapshot is the aggregate of everything currently connected.
// A snapshot handed out by the monitor is a private copy.
type ConnectedDevicesSnapshot struct {
	AndroidDevices       []AndroidDevice  `json:"androidDevices"`
	AndroidEmulators     []AndroidDevice  `json:"androidEmulators"`
	ApplePhysicalDevices []AppleDevice    `json:"applePhysicalDevices"`
	BootedSimulators     []AppleSimulator `json:"bootedSimulators"`
}

// Clone returns a deep copy. Nil sequences become empty so JSON renders [] instead of null.
func (s ConnectedDevicesSnapshot) Clone() ConnectedDevicesSnapshot {
	return ConnectedDevicesSnapshot{
		AndroidDevices:       append(make([]AndroidDevice, 0, len(s.AndroidDevices)), s.AndroidDevices...),
		AndroidEmulators:     append(make([]AndroidDevice, 0, len(s.AndroidEmulators)), s.AndroidEmulators...),
		ApplePhysicalDevices: append(make([]AppleDevice, 0, len(s.ApplePhysicalDevices)), s.ApplePhysicalDevices...),
		BootedSimulators:     append(make([]AppleSimulator, 0, len(s.BootedSimulators)), s.BootedSimulators...),
	}
}

// Equal reports whether both snapshots hold the same entries in the same order
func (s ConnectedDevicesSnapshot) Equal(o ConnectedDevicesSnapshot) bool {
	return equalSlices(s.AndroidDevices, o.AndroidDevices) &&
		equalSlices(s.AndroidEmulators, o.AndroidEmulators) &&
		equalSlices(s.ApplePhysicalDevices, o.ApplePhysicalDevices) &&
		equalSlices(s.BootedSimulators, o.BootedSimulators)
}

// Count returns the total number of entries across all sequences
func (s ConnectedDevicesSnapshot) Count() int {
	return len(s.AndroidDevices) + len(s.AndroidEmulators) + len(s.ApplePhysicalDevices) + len(s.BootedSimulators)
}

// DeviceRef identifies one snapshot entry independent of which sequence holds it
type DeviceRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
	Kind     string `json:"kind"`
}

// Key returns a stable identity for the entry
func (r DeviceRef) Key() string {
	return r.Platform + "/" + r.Kind + "/" + r.ID
}

// Refs flattens the snapshot into DeviceRefs keyed by DeviceRef.Key
func (s ConnectedDevicesSnapshot) Refs() map[string]DeviceRef {
	refs := make(map[string]DeviceRef, s.Count())
	add := func(r DeviceRef) { refs[r.Key()] = r }

	for _, d := range s.AndroidDevices {
		add(DeviceRef{ID: d.Serial, Name: androidName(d), Platform: PlatformAndroid, Kind: KindDevice})
	}
	for _, d := range s.AndroidEmulators {
		add(DeviceRef{ID: d.Serial, Name: androidName(d), Platform: PlatformAndroid, Kind: KindEmulator})
	}
	for _, d := range s.ApplePhysicalDevices {
		add(DeviceRef{ID: d.Identifier, Name: d.Name, Platform: PlatformApple, Kind: KindDevice})
	}
	for _, d := range s.BootedSimulators {
		add(DeviceRef{ID: d.Identifier, Name: d.Name, Platform: PlatformApple, Kind: KindSimulator})
	}
	return refs
}

func androidName(d AndroidDevice) string {
	if d.Model != "" {
		return d.Model
	}
	return d.Serial
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
