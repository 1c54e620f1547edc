package xcode

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedOutput is returned when tool output is not the expected JSON
var ErrMalformedOutput = errors.New("malformed tool output")

// StateBooted is the simctl state of a running simulator
const StateBooted = "Booted"

// Target is one entry of `xcdevice list`
type Target struct {
	Identifier   string
	Name         string
	ModelName    string
	Platform     string
	Architecture string
	OSVersion    string
	Interface    string
	Available    bool
	Ignored      bool
	Simulator    bool
}

// ParseTargets parses the JSON array printed by `xcdevice list`
func ParseTargets(data []byte) ([]Target, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedOutput
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, ErrMalformedOutput
	}

	targets := make([]Target, 0)
	root.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		targets = append(targets, Target{
			Identifier:   v.Get("identifier").String(),
			Name:         v.Get("name").String(),
			ModelName:    v.Get("modelName").String(),
			Platform:     v.Get("platform").String(),
			Architecture: v.Get("architecture").String(),
			OSVersion:    v.Get("operatingSystemVersion").String(),
			Interface:    v.Get("interface").String(),
			Available:    v.Get("available").Bool(),
			Ignored:      v.Get("ignored").Bool(),
			Simulator:    v.Get("simulator").Bool(),
		})
		return true
	})
	return targets, nil
}

// ParseSimulatorStates parses `simctl list devices --json` into udid -> state
func ParseSimulatorStates(data []byte) (map[string]string, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedOutput
	}
	devices := gjson.GetBytes(data, "devices")
	if !devices.IsObject() {
		return nil, ErrMalformedOutput
	}

	states := make(map[string]string)
	devices.ForEach(func(_, runtime gjson.Result) bool {
		for _, sim := range runtime.Array() {
			udid := sim.Get("udid").String()
			if udid == "" {
				continue
			}
			states[udid] = sim.Get("state").String()
		}
		return true
	})
	return states, nil
}

// IsBooted reports whether a simctl state means the simulator is running
func IsBooted(state string) bool {
	return strings.EqualFold(state, StateBooted)
}
