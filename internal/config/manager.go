package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/recapture/internal/logger"
)

// Manager owns the on-disk configuration. Reads hand out value snapshots;
// updates replace the whole configuration, never single fields.
type Manager struct {
	configPath string

	mu     sync.RWMutex
	config Config
	subs   []chan Config
}

// NewManager loads the config file, creating it with defaults when missing.
// An empty configFile selects ~/.config/recapture/config.yaml.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".config", "recapture", "config.yaml")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: path}

	cfg, err := m.load()
	switch {
	case err == nil:
		m.config = cfg
	case os.IsNotExist(err):
		logger.WithComponent("config").Info().
			Str("path", path).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	default:
		return nil, err
	}

	logger.WithComponent("config").Info().
		Str("path", path).
		Str("source", m.config.Target.Source).
		Str("executable", m.config.Target.Executable).
		Msg("Config loaded")

	return m, nil
}

// load reads and validates the file. Fields absent from the document keep
// their defaults; an explicit zero stays zero.
func (m *Manager) load() (Config, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Get returns a snapshot of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Update validates and replaces the entire configuration, then persists it.
// Invalid configs are rejected whole and the previous one stays in effect.
func (m *Manager) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	changed := cfg != m.config
	m.config = cfg
	m.mu.Unlock()

	if err := m.Save(); err != nil {
		return err
	}
	if changed {
		m.notify(cfg)
	}
	return nil
}

// SetTarget replaces the capture target, keeping the rest of the config.
func (m *Manager) SetTarget(t CaptureTarget) error {
	cfg := m.Get()
	cfg.Target = t
	return m.Update(cfg)
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	cfg := m.Get()

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Subscribe returns a channel that receives a snapshot after every accepted
// change. A slow receiver only misses intermediate snapshots, never the
// latest one.
func (m *Manager) Subscribe() <-chan Config {
	ch := make(chan Config, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) notify(cfg Config) {
	m.mu.RLock()
	subs := m.subs
	m.mu.RUnlock()

	for _, ch := range subs {
		// Replace any pending snapshot so receivers always see the latest.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
			}
		}
	}
}

// Watch reloads the configuration whenever the file changes on disk and
// publishes accepted changes to subscribers. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors replace the file on
	// save, which would drop a watch on the old inode.
	if err := watcher.Add(filepath.Dir(m.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	log := logger.WithComponent("config")
	log.Debug().Str("path", m.configPath).Msg("Watching config file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			m.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (m *Manager) reload() {
	log := logger.WithComponent("config")

	cfg, err := m.load()
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring config change, reload failed")
		return
	}

	m.mu.Lock()
	changed := cfg != m.config
	m.config = cfg
	m.mu.Unlock()

	if !changed {
		return
	}
	log.Info().Str("path", m.configPath).Msg("Config reloaded")
	m.notify(cfg)
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return m.configPath
}
