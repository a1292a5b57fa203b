package main

import (
	"errors"
	"fmt"

	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

func kindLabel(kind contracts.DeviceKind) string {
	switch kind {
	case contracts.AudioInput:
		return "audio input"
	case contracts.MIDIOutput:
		return "MIDI output"
	case contracts.MIDIPedal:
		return "MIDI pedal input"
	}
	return string(kind)
}

func deviceLabel(d contracts.DeviceInfo) string {
	label := d.Name
	if d.HostAPI != "" {
		label += dim.Sprintf(" [%s]", d.HostAPI)
	}
	if d.Virtual {
		label += dim.Sprint(" (virtual)")
	}
	return label
}

// selectDevice keeps the saved selection when it still resolves, unless force is
// set, and otherwise asks the user to pick from list.
func (a *app) selectDevice(kind contracts.DeviceKind, list []contracts.DeviceInfo, current *contracts.DeviceSelection, force bool) (*contracts.DeviceSelection, error) {
	list = devices.OfKind(kind, list)
	if len(list) == 0 {
		return nil, fmt.Errorf("no %s devices found", kindLabel(kind))
	}

	def := 0
	if current != nil {
		dev, err := devices.Resolve(kind, current, list)
		switch {
		case err == nil && !force:
			success.Fprintf(a.out, "Using %s: %s\n", kindLabel(kind), dev.Name)
			sel := devices.Selection(dev)
			return &sel, nil
		case err == nil:
			for i, d := range list {
				if d.StableKey == dev.StableKey {
					def = i
				}
			}
		case errors.Is(err, devices.ErrDeviceNotFound):
			warning.Fprintf(a.out, "Saved %s %q is not available.\n", kindLabel(kind), current.DisplayName)
		default:
			return nil, err
		}
	}

	labels := make([]string, len(list))
	for i, d := range list {
		labels[i] = deviceLabel(d)
	}
	idx, err := a.prompt.choose(fmt.Sprintf("Select %s:", kindLabel(kind)), labels, def)
	if err != nil {
		return nil, err
	}
	sel := devices.Selection(list[idx])
	return &sel, nil
}
