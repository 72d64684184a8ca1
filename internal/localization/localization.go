// Package localization provides the user-facing message tables. The English
// table is embedded; further languages can be loaded from a directory of
// JSON files named by language code (e.g. "de.json").
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// DefaultLang is used when a key is missing in the requested language.
const DefaultLang = "en"

//go:embed locales/*.json
var builtin embed.FS

// Localizer manages the translations for the application.
type Localizer struct {
	translations map[string]map[string]string
	mu           sync.RWMutex
}

// New returns a Localizer holding the embedded tables.
func New() (*Localizer, error) {
	l := &Localizer{translations: make(map[string]map[string]string)}
	if err := l.loadFS(builtin, "locales"); err != nil {
		return nil, err
	}
	return l, nil
}

// NewLocalizer returns the embedded tables overlaid with every JSON file in
// dir. An empty dir only loads the embedded tables.
func NewLocalizer(dir string) (*Localizer, error) {
	l, err := New()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return l, nil
	}
	if err := l.loadFS(os.DirFS(dir), "."); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Localizer) loadFS(fsys fs.FS, dir string) error {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read localization directory: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		lang := strings.TrimSuffix(file.Name(), ".json")

		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}
		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		table, ok := l.translations[lang]
		if !ok {
			table = make(map[string]string, len(translations))
			l.translations[lang] = table
		}
		for k, v := range translations {
			table[k] = v
		}
	}
	return nil
}

// GetString returns the localized string for a given key and language.
// It falls back to English and then to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if table, ok := l.translations[lang]; ok {
		if value, ok := table[key]; ok {
			return value
		}
	}
	if lang != DefaultLang {
		if table, ok := l.translations[DefaultLang]; ok {
			if value, ok := table[key]; ok {
				return value
			}
		}
	}
	return key
}

// Format looks key up and applies fmt.Sprintf with args.
func (l *Localizer) Format(lang, key string, args ...any) string {
	return fmt.Sprintf(l.GetString(lang, key), args...)
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.translations))
	for lang := range l.translations {
		out = append(out, lang)
	}
	return out
}
