package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Voice describes one available synthesis voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// Catalog lists the voices discovered in the configured voice directory.
type Catalog struct {
	voices map[string]Voice
}

// voiceLanguages maps voice ID prefixes onto language tags. Voice files
// follow the <language><gender>_<name> convention, e.g. af_heart is an
// American English female voice.
var voiceLanguages = map[byte]string{
	'a': "en-US",
	'b': "en-GB",
	'e': "es",
	'f': "fr",
	'h': "hi",
	'i': "it",
	'j': "ja",
	'p': "pt-BR",
	'z': "zh",
}

// LoadCatalog scans voiceDir for voice files and builds the catalog.
// Every regular file contributes one voice named after its base name.
func LoadCatalog(voiceDir string) (*Catalog, error) {
	entries, err := os.ReadDir(voiceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice directory %s: %w", voiceDir, err)
	}

	voices := make(map[string]Voice)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if id == "" {
			continue
		}

		voices[id] = parseVoiceID(id)
	}

	if len(voices) == 0 {
		return nil, fmt.Errorf("no voice files found in %s", voiceDir)
	}

	return &Catalog{voices: voices}, nil
}

// NewCatalog builds a catalog from explicit voice IDs. Used when the
// backend reports its voices instead of a local directory.
func NewCatalog(ids []string) *Catalog {
	voices := make(map[string]Voice, len(ids))
	for _, id := range ids {
		voices[id] = parseVoiceID(id)
	}
	return &Catalog{voices: voices}
}

// parseVoiceID derives display metadata from a voice ID.
func parseVoiceID(id string) Voice {
	voice := Voice{
		ID:       id,
		Name:     id,
		Language: "unknown",
		Gender:   "unknown",
	}

	prefix, name, ok := strings.Cut(id, "_")
	if !ok || len(prefix) != 2 {
		return voice
	}

	if lang, known := voiceLanguages[prefix[0]]; known {
		voice.Language = lang
	}

	switch prefix[1] {
	case 'f':
		voice.Gender = "female"
	case 'm':
		voice.Gender = "male"
	}

	if name != "" {
		voice.Name = strings.ToUpper(name[:1]) + name[1:]
	}
	return voice
}

// Has reports whether a voice ID exists in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.voices[id]
	return ok
}

// Voices returns all voices sorted by ID.
func (c *Catalog) Voices() []Voice {
	out := make([]Voice, 0, len(c.voices))
	for _, v := range c.voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VoicesByLanguage groups the catalog by language tag, each group sorted
// by voice ID.
func (c *Catalog) VoicesByLanguage() map[string][]Voice {
	grouped := make(map[string][]Voice)
	for _, v := range c.Voices() {
		grouped[v.Language] = append(grouped[v.Language], v)
	}
	return grouped
}
