package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/mongobackup/internal/config"
	"github.com/kadirbelkuyu/mongobackup/internal/database"
)

const defaultDir = "configs"

var (
	fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

	ErrNotFound = errors.New("profile not found")
)

// Profile is a saved connection and backup setup.
type Profile struct {
	Name      string
	Path      string
	Server    string
	Databases []string
	Modified  time.Time
}

// Manager discovers and persists profiles under a directory.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

func (m *Manager) Directory() string {
	return m.dir
}

// List returns every readable profile sorted by name. Files that fail to parse
// are skipped.
func (m *Manager) List() ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() || !hasYAMLExt(entry.Name()) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		cfg, err := config.LoadConfig(path)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		profiles = append(profiles, describe(path, cfg, modifiedTime(info, err)))
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].Name) < strings.ToLower(profiles[j].Name)
	})
	return profiles, nil
}

func modifiedTime(info os.FileInfo, err error) time.Time {
	if err != nil || info == nil {
		return time.Time{}
	}
	return info.ModTime()
}

func describe(path string, cfg *config.Config, modified time.Time) Profile {
	base := filepath.Base(path)
	return Profile{
		Name:      strings.TrimSuffix(base, filepath.Ext(base)),
		Path:      path,
		Server:    database.MaskURI(cfg.GetMongoURI()),
		Databases: cfg.Backup.Databases,
		Modified:  modified,
	}
}

// Save writes cfg under alias, replacing any profile with the same name.
func (m *Manager) Save(alias string, cfg *config.Config) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("config cannot be nil")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, err
	}

	base := strings.TrimSpace(alias)
	if base == "" {
		base = "mongo-" + time.Now().Format("20060102_150405")
	}
	path := filepath.Join(m.dir, ensureYAMLExt(sanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))))

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Profile{}, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Profile{}, err
	}

	return describe(path, cfg, time.Now()), nil
}

// Load reads a profile by alias or file path.
func (m *Manager) Load(alias string) (*config.Config, error) {
	path, err := m.resolve(alias)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

func (m *Manager) Delete(alias string) error {
	path, err := m.resolve(alias)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (m *Manager) resolve(alias string) (string, error) {
	if strings.TrimSpace(alias) == "" {
		return "", fmt.Errorf("profile alias cannot be empty")
	}

	path := alias
	if !strings.ContainsAny(alias, `/\`) {
		path = filepath.Join(m.dir, ensureYAMLExt(alias))
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, alias)
	}
	return path, nil
}

func hasYAMLExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func ensureYAMLExt(name string) string {
	if hasYAMLExt(name) {
		return name
	}
	return name + ".yaml"
}

func sanitizeName(input string) string {
	cleaned := fileNameSanitizer.ReplaceAllString(input, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "profile"
	}
	return cleaned
}
