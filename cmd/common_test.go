package cmd

import (
	"testing"

	"github.com/BioHazard786/deskwarp/internal/room"
)

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		input   string
		want    room.ID
		wantErr bool
	}{
		{"123456789", "123456789", false},
		{" 123 456 789 ", "123456789", false},
		{"123-456-789", "123456789", false},
		{"https://deskwarp.qzz.io/r/123456789", "123456789", false},
		{"https://deskwarp.qzz.io/r/123456789/", "123456789", false},
		{"", "", true},
		{"12345", "", true},
		{"https://deskwarp.qzz.io/about", "", true},
		{"https://deskwarp.qzz.io/r/abc", "", true},
	}
	for _, tt := range tests {
		got, err := parseRoomInput(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRoomInput(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRoomInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSettingsView(t *testing.T) {
	dir := t.TempDir()
	flagConfigDir = dir
	t.Cleanup(func() { flagConfigDir = "" })

	store, err := openSettings()
	if err != nil {
		t.Fatal(err)
	}
	if store.Path() == "" {
		t.Fatal("no settings path")
	}
	view := settingsView(store.Get(), store.HasPassword(), store.Path())
	if view == "" {
		t.Fatal("empty view")
	}
}
