package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mourne/internal/domain"
)

// manifest describes one batch job.
type manifest struct {
	Name    string          `yaml:"name"`
	Script  string          `yaml:"script"`
	Brief   string          `yaml:"brief"`
	Locale  string          `yaml:"locale"`
	Style   string          `yaml:"style"`
	Audio   string          `yaml:"audio"`
	Timeout time.Duration   `yaml:"timeout"`
	Scenes  []manifestScene `yaml:"scenes"`

	dir string
}

type manifestScene struct {
	Number      int      `yaml:"number"`
	Description string   `yaml:"description"`
	Prompt      string   `yaml:"prompt"`
	Media       []string `yaml:"media"`
	Assets      []string `yaml:"assets"`

	media []domain.MediaType
}

func loadManifest(path string) (*manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m.dir = filepath.Dir(path)
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *manifest) validate() error {
	if strings.TrimSpace(m.Script) == "" && strings.TrimSpace(m.Brief) == "" {
		return fmt.Errorf("manifest: script or brief is required")
	}
	if len(m.Scenes) == 0 {
		return fmt.Errorf("manifest: at least one scene is required")
	}
	if m.Timeout <= 0 {
		m.Timeout = 15 * time.Minute
	}
	seen := make(map[int]bool, len(m.Scenes))
	for i := range m.Scenes {
		sc := &m.Scenes[i]
		if sc.Number < 1 {
			return fmt.Errorf("manifest: scenes[%d].number must be positive", i)
		}
		if seen[sc.Number] {
			return fmt.Errorf("manifest: scene %d listed twice", sc.Number)
		}
		seen[sc.Number] = true
		if len(sc.Media) == 0 {
			sc.Media = []string{string(domain.MediaTypeImage)}
		}
		sc.media = sc.media[:0]
		for _, v := range sc.Media {
			mt, err := domain.ParseMediaType(v)
			if err != nil {
				return fmt.Errorf("manifest: scene %d: %w", sc.Number, err)
			}
			sc.media = append(sc.media, mt)
		}
	}
	return nil
}

// resolve makes manifest-relative paths absolute.
func (m *manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

func (sc manifestScene) wants(mt domain.MediaType) bool {
	for _, v := range sc.media {
		if v == mt {
			return true
		}
	}
	return false
}
