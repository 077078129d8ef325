package device

import (
	"github.com/rs/zerolog/log"

	"github.com/pingboard/pingboardd/internal/pingboard"
)

// The board reports its keys as a keyboard: every key sends a modifier
// (left meta, code 125) plus one of four function-key codes. A key press
// counts only while the modifier is held, so stray keyboards matching the
// same codes do not trigger events.
const modifierKeyCode = 125

// keyCodes maps position in the array to KeyIndex 1..4.
var keyCodes = [pingboard.NumKeys]uint16{88, 87, 68, 67}

// keyParser tracks the modifier state across events and fires the callback
// once per gated key-down.
type keyParser struct {
	modifier bool
	onKey    func(pingboard.KeyIndex)
}

func newKeyParser(onKey func(pingboard.KeyIndex)) *keyParser {
	return &keyParser{onKey: onKey}
}

func (p *keyParser) process(code uint16, pressed bool) {
	if code == modifierKeyCode {
		p.modifier = pressed
		return
	}

	idx := pingboard.KeyIndex(0)
	for i, c := range keyCodes {
		if c == code {
			idx = pingboard.KeyIndex(i + 1)
			break
		}
	}
	if !idx.Valid() {
		log.Warn().Uint16("code", code).Msg("Unknown Pingboard key code")
		return
	}

	if p.modifier && pressed && p.onKey != nil {
		p.onKey(idx)
	}
}
