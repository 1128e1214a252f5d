package tts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"af_heart.pt", "am_adam.pt", "bf_emma.pt", "jm_kumo.pt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("weights"), 0644); err != nil {
			t.Fatalf("Failed to create voice file: %v", err)
		}
	}

	catalog, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	voices := catalog.Voices()
	if len(voices) != 4 {
		t.Fatalf("Expected 4 voices, got %d", len(voices))
	}

	// Sorted by ID.
	if voices[0].ID != "af_heart" {
		t.Errorf("Expected af_heart first, got %s", voices[0].ID)
	}

	heart := voices[0]
	if heart.Language != "en-US" || heart.Gender != "female" || heart.Name != "Heart" {
		t.Errorf("Unexpected voice metadata: %+v", heart)
	}

	if !catalog.Has("bf_emma") {
		t.Error("Expected bf_emma in catalog")
	}
	if catalog.Has("xx_nope") {
		t.Error("Did not expect xx_nope in catalog")
	}
}

func TestLoadCatalogEmptyDir(t *testing.T) {
	if _, err := LoadCatalog(t.TempDir()); err == nil {
		t.Error("Expected error for empty voice directory")
	}
}

func TestVoicesByLanguage(t *testing.T) {
	catalog := NewCatalog([]string{"af_heart", "am_adam", "bf_emma", "zf_xiaobei"})

	grouped := catalog.VoicesByLanguage()

	if len(grouped["en-US"]) != 2 {
		t.Errorf("Expected 2 en-US voices, got %d", len(grouped["en-US"]))
	}
	if len(grouped["en-GB"]) != 1 {
		t.Errorf("Expected 1 en-GB voice, got %d", len(grouped["en-GB"]))
	}
	if len(grouped["zh"]) != 1 {
		t.Errorf("Expected 1 zh voice, got %d", len(grouped["zh"]))
	}
}

func TestParseVoiceIDUnknownShape(t *testing.T) {
	v := parseVoiceID("customvoice")
	if v.Language != "unknown" || v.Name != "customvoice" {
		t.Errorf("Unexpected fallback metadata: %+v", v)
	}
}
