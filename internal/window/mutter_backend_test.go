package window

import "testing"

func TestParseMutterList(t *testing.T) {
	payload := `[
		{"id": 42, "title": "RetroArch 1.9.0", "wm_class": "RetroArch", "wm_class_instance": "retroarch", "pid": 1234, "window_type": 0},
		{"id": 43, "title": "gnome-shell", "wm_class": "Gjs", "wm_class_instance": "gjs", "pid": 2, "window_type": 6},
		{"id": 44, "title": "Files", "wm_class": "Nautilus", "wm_class_instance": "", "pid": 99, "window_type": 0}
	]`

	windows, err := parseMutterList([]byte(payload), nil)
	if err != nil {
		t.Fatalf("parseMutterList() error: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("windows = %d, want 2 after filtering shell chrome", len(windows))
	}

	if windows[0].ID != 42 || windows[0].App != "retroarch" {
		t.Errorf("windows[0] = %+v, want id 42 with the instance name", windows[0])
	}
	if windows[0].PID != 1234 {
		t.Errorf("pid = %d, want 1234", windows[0].PID)
	}
	if windows[1].App != "Nautilus" {
		t.Errorf("windows[1].App = %q, want the class fallback Nautilus", windows[1].App)
	}
}

func TestParseMutterListFillsMissingTitles(t *testing.T) {
	payload := `[{"id": 7, "wm_class": "mGBA", "wm_class_instance": "mgba", "window_type": 0}]`

	windows, err := parseMutterList([]byte(payload), func(id uint32) string {
		if id == 7 {
			return "mGBA - 0.10.2"
		}
		return ""
	})
	if err != nil {
		t.Fatalf("parseMutterList() error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("windows = %d, want 1", len(windows))
	}
	if windows[0].Title != "mGBA - 0.10.2" {
		t.Errorf("title = %q, want the fetched title", windows[0].Title)
	}
}

func TestParseMutterListRejectsGarbage(t *testing.T) {
	if _, err := parseMutterList([]byte("not json"), nil); err == nil {
		t.Error("parseMutterList() accepted a malformed payload")
	}
}
