package window

import "testing"

func TestParseWMClass(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"instance_preferred", "retroarch\x00RetroArch\x00", "retroarch"},
		{"class_fallback", "\x00RetroArch\x00", "RetroArch"},
		{"no_terminators", "single", "single"},
		{"empty", "", ""},
		{"only_terminators", "\x00\x00", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseWMClass(tt.raw); got != tt.want {
				t.Errorf("parseWMClass(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseWindowIDs(t *testing.T) {
	value := []byte{
		0x2a, 0x00, 0x00, 0x00, // 42
		0x01, 0x02, 0x00, 0x00, // 0x0201
	}

	ids := parseWindowIDs(value)
	if len(ids) != 2 {
		t.Fatalf("ids = %d, want 2", len(ids))
	}
	if uint32(ids[0]) != 42 {
		t.Errorf("ids[0] = %d, want 42", ids[0])
	}
	if uint32(ids[1]) != 0x0201 {
		t.Errorf("ids[1] = %#x, want 0x0201", uint32(ids[1]))
	}
}

func TestParseWindowIDsIgnoresTrailingBytes(t *testing.T) {
	value := []byte{0x2a, 0x00, 0x00, 0x00, 0xff, 0xff}

	ids := parseWindowIDs(value)
	if len(ids) != 1 {
		t.Errorf("ids = %d, want 1 with a truncated tail", len(ids))
	}
}

func TestU32LE(t *testing.T) {
	if got := u32le([]byte{0xef, 0xbe, 0xad, 0xde}); got != 0xdeadbeef {
		t.Errorf("u32le = %#x, want 0xdeadbeef", got)
	}
}
