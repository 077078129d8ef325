package pingboard

import "fmt"

// NumKeys is the number of physical keys on the board.
const NumKeys = 4

// KeyIndex identifies one physical key, counted from 1.
type KeyIndex int

// Valid reports whether the index addresses an existing key.
func (k KeyIndex) Valid() bool {
	return k >= 1 && k <= NumKeys
}

// Color is an RGB triple. Each channel is in [0, 255].
// It marshals to/from a JSON array [r, g, b].
type Color [3]int

// Validate checks all channels are in range.
func (c Color) Validate() error {
	for i, ch := range c {
		if ch < 0 || ch > 255 {
			return fmt.Errorf("color channel %d out of range [0,255]: %d", i, ch)
		}
	}
	return nil
}

// BlinkMode selects the blink behavior of a key.
type BlinkMode string

const (
	BlinkOff    BlinkMode = "OFF"
	BlinkSingle BlinkMode = "SINGLE"
	BlinkShort  BlinkMode = "SHORT"
	BlinkLong   BlinkMode = "LONG"
)

// Valid reports whether the mode is one of the known values.
func (m BlinkMode) Valid() bool {
	switch m {
	case BlinkOff, BlinkSingle, BlinkShort, BlinkLong:
		return true
	}
	return false
}

// KeyColorSetting is the desired static color for one key.
type KeyColorSetting struct {
	Idx   KeyIndex `json:"idx"`
	Color Color    `json:"color"`
}

// KeyBlinkSetting is the desired blink mode and blink color for one key.
type KeyBlinkSetting struct {
	Idx   KeyIndex  `json:"idx"`
	Mode  BlinkMode `json:"mode"`
	Color Color     `json:"color"`
}

// Configuration is the full desired device state. Brightness is nil until
// a message has set it. Keys and Blink preserve first-appearance order;
// entries are unique per Idx (enforced by Merge).
type Configuration struct {
	Brightness *int              `json:"brightness,omitempty"`
	Keys       []KeyColorSetting `json:"keys"`
	Blink      []KeyBlinkSetting `json:"blink"`
}

// Clone returns a deep copy, safe to hand out while the original keeps
// being merged into.
func (c Configuration) Clone() Configuration {
	out := Configuration{}
	if c.Brightness != nil {
		b := *c.Brightness
		out.Brightness = &b
	}
	if c.Keys != nil {
		out.Keys = append([]KeyColorSetting(nil), c.Keys...)
	}
	if c.Blink != nil {
		out.Blink = append([]KeyBlinkSetting(nil), c.Blink...)
	}
	return out
}

// Empty reports whether no configuration has been applied yet.
func (c Configuration) Empty() bool {
	return c.Brightness == nil && len(c.Keys) == 0 && len(c.Blink) == 0
}
