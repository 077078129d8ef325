package pingboard

import (
	"encoding/json"
	"fmt"
)

// Update is a validated partial configuration decoded from one inbound
// message. Absent fields are nil and leave the current value untouched
// when merged.
type Update struct {
	Brightness *int
	Keys       []KeyColorSetting
	Blink      []KeyBlinkSetting
}

// Empty reports whether the update carries no changes at all.
func (u Update) Empty() bool {
	return u.Brightness == nil && len(u.Keys) == 0 && len(u.Blink) == 0
}

// Wire shapes for decoding. Colors come in as plain arrays so that length
// and range can be checked before they become a Color.
type updateWire struct {
	Brightness *int           `json:"brightness"`
	Keys       []keyColorWire `json:"keys"`
	Blink      []keyBlinkWire `json:"blink"`
}

type keyColorWire struct {
	Idx   *int  `json:"idx"`
	Color []int `json:"color"`
}

type keyBlinkWire struct {
	Idx   *int    `json:"idx"`
	Mode  *string `json:"mode"`
	Color []int   `json:"color"`
}

type envelopeWire struct {
	Configuration *updateWire `json:"configuration"`
}

// DecodeUpdate parses and validates one configuration message. The message
// is an object with an optional "configuration" key; within it brightness,
// keys and blink are each optional. Unknown fields are ignored. Any
// out-of-range or malformed value rejects the whole message.
func DecodeUpdate(raw []byte) (Update, error) {
	var env envelopeWire
	if err := json.Unmarshal(raw, &env); err != nil {
		return Update{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if env.Configuration == nil {
		return Update{}, nil
	}
	return validateUpdate(*env.Configuration)
}

func validateUpdate(w updateWire) (Update, error) {
	var u Update

	if w.Brightness != nil {
		b := *w.Brightness
		if b < 0 || b > 255 {
			return Update{}, fmt.Errorf("brightness out of range [0,255]: %d", b)
		}
		u.Brightness = &b
	}

	for i, k := range w.Keys {
		if k.Idx == nil {
			return Update{}, fmt.Errorf("keys[%d]: missing idx", i)
		}
		idx := KeyIndex(*k.Idx)
		if !idx.Valid() {
			return Update{}, fmt.Errorf("keys[%d]: idx out of range [1,%d]: %d", i, NumKeys, *k.Idx)
		}
		color, err := validateColor(k.Color)
		if err != nil {
			return Update{}, fmt.Errorf("keys[%d]: %w", i, err)
		}
		u.Keys = append(u.Keys, KeyColorSetting{Idx: idx, Color: color})
	}

	for i, b := range w.Blink {
		if b.Idx == nil {
			return Update{}, fmt.Errorf("blink[%d]: missing idx", i)
		}
		idx := KeyIndex(*b.Idx)
		if !idx.Valid() {
			return Update{}, fmt.Errorf("blink[%d]: idx out of range [1,%d]: %d", i, NumKeys, *b.Idx)
		}
		if b.Mode == nil {
			return Update{}, fmt.Errorf("blink[%d]: missing mode", i)
		}
		mode := BlinkMode(*b.Mode)
		if !mode.Valid() {
			return Update{}, fmt.Errorf("blink[%d]: unknown mode %q", i, *b.Mode)
		}
		color, err := validateColor(b.Color)
		if err != nil {
			return Update{}, fmt.Errorf("blink[%d]: %w", i, err)
		}
		u.Blink = append(u.Blink, KeyBlinkSetting{Idx: idx, Mode: mode, Color: color})
	}

	return u, nil
}

func validateColor(raw []int) (Color, error) {
	if raw == nil {
		return Color{}, fmt.Errorf("missing color")
	}
	if len(raw) != 3 {
		return Color{}, fmt.Errorf("color must have 3 channels, got %d", len(raw))
	}
	c := Color{raw[0], raw[1], raw[2]}
	if err := c.Validate(); err != nil {
		return Color{}, err
	}
	return c, nil
}

// Merge folds a validated update into the current configuration and
// returns the result; the input configuration is not modified. Per-key
// entries replace an existing entry with the same idx in place, otherwise
// they are appended, so the last occurrence of an idx wins both within one
// update and across successive updates.
func Merge(cur Configuration, u Update) Configuration {
	out := cur.Clone()

	if u.Brightness != nil {
		b := *u.Brightness
		out.Brightness = &b
	}

	for _, k := range u.Keys {
		out.Keys = mergeKey(out.Keys, k)
	}
	for _, b := range u.Blink {
		out.Blink = mergeBlink(out.Blink, b)
	}

	return out
}

func mergeKey(keys []KeyColorSetting, k KeyColorSetting) []KeyColorSetting {
	for i := range keys {
		if keys[i].Idx == k.Idx {
			keys[i] = k
			return keys
		}
	}
	return append(keys, k)
}

func mergeBlink(blinks []KeyBlinkSetting, b KeyBlinkSetting) []KeyBlinkSetting {
	for i := range blinks {
		if blinks[i].Idx == b.Idx {
			blinks[i] = b
			return blinks
		}
	}
	return append(blinks, b)
}
