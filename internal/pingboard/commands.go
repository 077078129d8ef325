package pingboard

import "fmt"

// Serial command lines understood by the board firmware. Every command is
// a single newline-terminated ASCII line; the firmware answers each with
// "OK\n".

// BrightnessCommand encodes a global brightness change.
func BrightnessCommand(brightness int) string {
	return fmt.Sprintf("DIM %03d\n", brightness)
}

// KeyColorCommand encodes a static color change for one key.
func KeyColorCommand(s KeyColorSetting) string {
	return fmt.Sprintf("COL %1d %03d %03d %03d\n", s.Idx, s.Color[0], s.Color[1], s.Color[2])
}

// KeyBlinkCommand encodes a blink mode and blink color change for one key.
func KeyBlinkCommand(s KeyBlinkSetting) string {
	return fmt.Sprintf("BLNK %1d %s %03d %03d %03d\n", s.Idx, s.Mode, s.Color[0], s.Color[1], s.Color[2])
}

// Commands expands the update into serial command lines in apply order:
// brightness first, then key colors, then blink settings, each in the
// order they appeared in the message.
func (u Update) Commands() []string {
	var cmds []string
	if u.Brightness != nil {
		cmds = append(cmds, BrightnessCommand(*u.Brightness))
	}
	for _, k := range u.Keys {
		cmds = append(cmds, KeyColorCommand(k))
	}
	for _, b := range u.Blink {
		cmds = append(cmds, KeyBlinkCommand(b))
	}
	return cmds
}

// Commands expands the full configuration into serial command lines, used
// to push the merged state to a freshly attached board.
func (c Configuration) Commands() []string {
	var cmds []string
	if c.Brightness != nil {
		cmds = append(cmds, BrightnessCommand(*c.Brightness))
	}
	for _, k := range c.Keys {
		cmds = append(cmds, KeyColorCommand(k))
	}
	for _, b := range c.Blink {
		cmds = append(cmds, KeyBlinkCommand(b))
	}
	return cmds
}
