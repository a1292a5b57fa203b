// Package devices derives stable device identities and resolves persisted
// selections against the devices currently present.
package devices

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// ErrDeviceNotFound is returned when a persisted selection matches no present device.
var ErrDeviceNotFound = errors.New("device not found")

var (
	// ALSA sequencer names end in "client:port", both of which change between sessions.
	alsaAddress = regexp.MustCompile(`\s+\d+:\d+$`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// virtualIndicators mark software MIDI ports.
var virtualIndicators = []string{"iac driver", "loopmidi", "midi through", "virtual", "software"}

// StableKey normalises the identifying parts of a device (typically host API and
// name) into a key that survives re-enumeration. Empty parts are skipped.
func StableKey(parts ...string) string {
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = alsaAddress.ReplaceAllString(strings.TrimSpace(p), "")
		p = whitespace.ReplaceAllString(p, " ")
		if p == "" {
			continue
		}
		keys = append(keys, strings.ToLower(p))
	}
	return strings.Join(keys, "|")
}

// IsVirtual reports whether a MIDI port name looks like a software port.
func IsVirtual(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range virtualIndicators {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Resolve finds the present device for a persisted selection. It prefers an exact
// stable key match, then an exact display name match, and never falls back to a
// default device.
func Resolve(kind contracts.DeviceKind, sel *contracts.DeviceSelection, current []contracts.DeviceInfo) (contracts.DeviceInfo, error) {
	if sel == nil {
		return contracts.DeviceInfo{}, fmt.Errorf("%w: no %s selected", ErrDeviceNotFound, kind)
	}
	if sel.StableKey != "" {
		for _, d := range current {
			if d.Kind == kind && d.StableKey == sel.StableKey {
				return d, nil
			}
		}
	}
	if sel.DisplayName != "" {
		for _, d := range current {
			if d.Kind == kind && d.Name == sel.DisplayName {
				return d, nil
			}
		}
	}
	return contracts.DeviceInfo{}, fmt.Errorf("%w: %s %q", ErrDeviceNotFound, kind, sel.DisplayName)
}

// Selection builds the persisted form of a present device.
func Selection(d contracts.DeviceInfo) contracts.DeviceSelection {
	sel := contracts.DeviceSelection{
		Kind:        d.Kind,
		DisplayName: d.Name,
		StableKey:   d.StableKey,
	}
	extra := map[string]string{}
	if d.HostAPI != "" {
		extra["host_api"] = d.HostAPI
	}
	if d.Manufacturer != "" {
		extra["manufacturer"] = d.Manufacturer
	}
	if len(extra) > 0 {
		sel.ExtraParams = extra
	}
	return sel
}

// OfKind returns the devices of the given kind, preserving order.
func OfKind(kind contracts.DeviceKind, list []contracts.DeviceInfo) []contracts.DeviceInfo {
	var out []contracts.DeviceInfo
	for _, d := range list {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
