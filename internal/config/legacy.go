package config

import (
	"encoding/json"

	"github.com/leandrodaf/voicemidi/internal/devices"
	"github.com/leandrodaf/voicemidi/internal/pedal"
	"github.com/leandrodaf/voicemidi/sdk/contracts"
)

// legacyKeys only appear in files written by the earlier single-script tool.
var legacyKeys = []string{"audio_index", "audio_name", "midi_index", "midi_name", "pedal_port", "pedal_message"}

func isLegacy(keys map[string]json.RawMessage) bool {
	if _, ok := keys["audio_input"]; ok {
		return false
	}
	if _, ok := keys["midi_output"]; ok {
		return false
	}
	for _, k := range legacyKeys {
		if _, ok := keys[k]; ok {
			return true
		}
	}
	return false
}

type legacyConfig struct {
	AudioName    *string             `json:"audio_name"`
	MIDIName     *string             `json:"midi_name"`
	Transpose    *int                `json:"transpose"`
	MinFreq      *float64            `json:"min_freq"`
	ChunkSize    *int                `json:"chunk_size"`
	MaxMIDINote  *int                `json:"max_midi_note"`
	PedalPort    *string             `json:"pedal_port"`
	PedalMessage *legacyPedalMessage `json:"pedal_message"`
}

type legacyPedalMessage struct {
	Type    string `json:"type"`
	Note    *int   `json:"note"`
	Control *int   `json:"control"`
	Value   *int   `json:"value"`
}

// convert maps the legacy layout onto a Config. Device indexes are dropped; names
// are kept so resolution can fall back on them.
func (l legacyConfig) convert() Config {
	cfg := Default()
	if l.AudioName != nil && *l.AudioName != "" {
		cfg.AudioInput = &contracts.DeviceSelection{
			Kind:        contracts.AudioInput,
			DisplayName: *l.AudioName,
			StableKey:   devices.StableKey(*l.AudioName),
		}
	}
	if l.MIDIName != nil && *l.MIDIName != "" {
		cfg.MIDIOutput = &contracts.DeviceSelection{
			Kind:        contracts.MIDIOutput,
			DisplayName: *l.MIDIName,
			StableKey:   devices.StableKey(*l.MIDIName),
		}
	}
	if l.Transpose != nil {
		cfg.Transpose = *l.Transpose
	}
	if l.MinFreq != nil {
		cfg.MinFreq = *l.MinFreq
	}
	if l.ChunkSize != nil {
		cfg.ChunkSize = *l.ChunkSize
	}
	if l.MaxMIDINote != nil {
		cfg.MaxMIDINote = *l.MaxMIDINote
	}
	if l.PedalPort != nil && *l.PedalPort != "" && l.PedalMessage != nil {
		sel := contracts.DeviceSelection{
			Kind:        contracts.MIDIPedal,
			DisplayName: *l.PedalPort,
			StableKey:   devices.StableKey(*l.PedalPort),
		}
		if b, ok := l.PedalMessage.binding(sel.StableKey); ok {
			cfg.MIDIPedal = &sel
			cfg.PedalBinding = &b
		}
	}
	return cfg
}

// binding converts a recorded pedal message. The legacy format did not store the
// channel, so the binding listens on every channel.
func (m legacyPedalMessage) binding(portKey string) (contracts.PedalBinding, bool) {
	b := contracts.PedalBinding{PortStableKey: portKey, Channel: contracts.AnyChannel}
	switch m.Type {
	case "control_change":
		if m.Control == nil {
			return b, false
		}
		b.MessageType = contracts.ControlChange
		b.Data1 = *m.Control
		b.Midpoint = pedal.DefaultMidpoint
		v := 127
		if m.Value != nil {
			v = *m.Value
		}
		r := pedal.PressRange(v, b.Midpoint)
		b.Data2Range = &r
	case "note_on", "note_off":
		if m.Note == nil {
			return b, false
		}
		b.MessageType = contracts.NoteOnMessage
		if m.Type == "note_off" {
			b.MessageType = contracts.NoteOffMessage
		}
		b.Data1 = *m.Note
	default:
		return b, false
	}
	return b, true
}
