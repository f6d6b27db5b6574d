package i18n

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	// Tf renders the template stored under key with data. Templates may call {{num .X}}.
	Tf(key string, data any) string
	Number(n int64) string
	Lang() string
}

// Manager stores all available translations.
type Manager struct {
	translations map[string]map[string]string
	defaultLang  string

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// Load loads the bundled translations.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, "locales", defaultLang)
}

// LoadFromDir loads translations from a directory containing YAML files.
func LoadFromDir(dir, defaultLang string) (*Manager, error) {
	return LoadFS(os.DirFS(dir), ".", defaultLang)
}

// LoadFS loads every YAML file in dir of fsys.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	catalog, err := parseDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = "ko"
	}
	defaultLang = normalize(defaultLang)

	if _, ok := catalog[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{
		translations: catalog,
		defaultLang:  defaultLang,
		templates:    make(map[string]*template.Template),
	}, nil
}

// Translator returns a translator for the requested language. Region subtags are ignored,
// so "en-US" resolves to "en".
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := normalize(lang)
	if norm == "" || m.translations[norm] == nil {
		norm = m.defaultLang
	}

	return translator{lang: norm, manager: m}
}

// Languages returns all loaded languages.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	languages := make([]string, 0, len(m.translations))
	for lang := range m.translations {
		languages = append(languages, lang)
	}
	return languages
}

// DefaultLang returns the fallback language.
func (m *Manager) DefaultLang() string {
	if m == nil {
		return ""
	}
	return m.defaultLang
}

func (m *Manager) lookup(lang, key string) string {
	if entries := m.translations[lang]; entries != nil {
		return entries[key]
	}
	return ""
}

func (m *Manager) template(lang, key, text string, funcs template.FuncMap) (*template.Template, error) {
	cacheKey := lang + "\x00" + key

	m.mu.RLock()
	tmpl, ok := m.templates[cacheKey]
	m.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New(key).Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.templates[cacheKey] = tmpl
	m.mu.Unlock()

	return tmpl, nil
}

type translator struct {
	lang    string
	manager *Manager
}

func (t translator) Lang() string {
	return t.lang
}

func (t translator) T(key string) string {
	text, _ := t.resolve(key)
	return text
}

func (t translator) Tf(key string, data any) string {
	text, lang := t.resolve(key)
	if lang == "" || !strings.Contains(text, "{{") {
		return text
	}

	printer := t.printer()
	tmpl, err := t.manager.template(lang, key, text, template.FuncMap{
		"num": func(n int64) string { return printer.Sprintf("%d", n) },
	})
	if err != nil {
		return text
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return text
	}
	return buf.String()
}

// Number formats n with the digit grouping of the translator's language.
func (t translator) Number(n int64) string {
	return t.printer().Sprintf("%d", n)
}

func (t translator) printer() *message.Printer {
	tag, err := language.Parse(t.lang)
	if err != nil {
		tag = language.Korean
	}
	return message.NewPrinter(tag)
}

// resolve returns the text for key and the language it was found in. Missing keys resolve to
// the key itself with an empty language.
func (t translator) resolve(key string) (string, string) {
	key = strings.TrimSpace(key)
	if key == "" || t.manager == nil {
		return key, ""
	}

	if value := t.manager.lookup(t.lang, key); value != "" {
		return value, t.lang
	}

	if value := t.manager.lookup(t.manager.defaultLang, key); value != "" {
		return value, t.manager.defaultLang
	}

	return key, ""
}

func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

func parseDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	catalog := make(map[string]map[string]string)
	var processed bool

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry) {
			continue
		}

		processed = true

		fileCatalog, err := parseFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		for lang, translations := range fileCatalog {
			if _, ok := catalog[lang]; !ok {
				catalog[lang] = make(map[string]string)
			}
			for key, value := range translations {
				catalog[lang][key] = value
			}
		}
	}

	if !processed {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	return catalog, nil
}

func isYAML(entry fs.DirEntry) bool {
	name := strings.ToLower(entry.Name())
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func parseFile(fsys fs.FS, name string) (map[string]map[string]string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return map[string]map[string]string{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
	}

	catalog := make(map[string]map[string]string)
	for lang, value := range raw {
		langKey := normalize(lang)
		if langKey == "" {
			continue
		}

		normalized := toStringMap(value)
		if len(normalized) == 0 {
			continue
		}

		flattened := make(map[string]string)
		flatten("", normalized, flattened)
		if len(flattened) == 0 {
			continue
		}

		catalog[langKey] = flattened
	}

	return catalog, nil
}

func toStringMap(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		return v
	case map[any]any:
		converted := make(map[string]any, len(v))
		for key, item := range v {
			keyStr, ok := key.(string)
			if !ok {
				continue
			}
			converted[keyStr] = item
		}
		return converted
	default:
		return nil
	}
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for key, value := range in {
		if key == "" {
			continue
		}

		nextKey := key
		if prefix != "" {
			nextKey = prefix + "." + key
		}

		switch v := value.(type) {
		case string:
			out[nextKey] = v
		case map[string]any, map[any]any:
			if child := toStringMap(v); len(child) > 0 {
				flatten(nextKey, child, out)
			}
		}
	}
}
