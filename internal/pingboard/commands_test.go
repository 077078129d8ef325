package pingboard

import (
	"reflect"
	"testing"
)

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"brightness", BrightnessCommand(100), "DIM 100\n"},
		{"brightness_padded", BrightnessCommand(7), "DIM 007\n"},
		{"key_color", KeyColorCommand(KeyColorSetting{Idx: 1, Color: Color{10, 20, 30}}), "COL 1 010 020 030\n"},
		{"key_color_max", KeyColorCommand(KeyColorSetting{Idx: 4, Color: Color{255, 0, 255}}), "COL 4 255 000 255\n"},
		{"blink", KeyBlinkCommand(KeyBlinkSetting{Idx: 2, Mode: BlinkShort, Color: Color{1, 2, 3}}), "BLNK 2 SHORT 001 002 003\n"},
		{"blink_off", KeyBlinkCommand(KeyBlinkSetting{Idx: 3, Mode: BlinkOff, Color: Color{0, 0, 0}}), "BLNK 3 OFF 000 000 000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestUpdateCommands_Order(t *testing.T) {
	u := Update{
		Brightness: intPtr(128),
		Keys: []KeyColorSetting{
			{Idx: 2, Color: Color{0, 0, 0}},
			{Idx: 1, Color: Color{1, 1, 1}},
		},
		Blink: []KeyBlinkSetting{{Idx: 1, Mode: BlinkLong, Color: Color{2, 2, 2}}},
	}
	want := []string{
		"DIM 128\n",
		"COL 2 000 000 000\n",
		"COL 1 001 001 001\n",
		"BLNK 1 LONG 002 002 002\n",
	}
	if got := u.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}

func TestUpdateCommands_EmptyUpdate(t *testing.T) {
	if cmds := (Update{}).Commands(); len(cmds) != 0 {
		t.Errorf("empty update produced commands: %v", cmds)
	}
}

func TestConfigurationCommands_FullPush(t *testing.T) {
	cfg := Merge(Configuration{}, Update{
		Brightness: intPtr(255),
		Keys:       []KeyColorSetting{{Idx: 1, Color: Color{10, 20, 30}}},
		Blink:      []KeyBlinkSetting{{Idx: 1, Mode: BlinkOff, Color: Color{0, 0, 0}}},
	})
	want := []string{
		"DIM 255\n",
		"COL 1 010 020 030\n",
		"BLNK 1 OFF 000 000 000\n",
	}
	if got := cfg.Commands(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands = %v, want %v", got, want)
	}
}
