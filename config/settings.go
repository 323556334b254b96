package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server   ServerSettings   `json:"server"`
	Metadata MetadataSettings `json:"metadata"`
	Catalog  CatalogSettings  `json:"catalog"`
	Relay    RelaySettings    `json:"relay"`
	Cache    CacheSettings    `json:"cache"`
	Log      LogConfig        `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

// CatalogSettings controls the storefront search used for licensed previews.
type CatalogSettings struct {
	Storefronts      []string `json:"storefronts"`      // Region codes queried concurrently per title variant
	MinMatchScore    float64  `json:"minMatchScore"`    // Acceptance threshold for the weighted candidate score
	SearchTimeoutSec int      `json:"searchTimeoutSec"` // Per-region search timeout in seconds
}

// RelayClassSettings configures one relay provider family.
type RelayClassSettings struct {
	DirectoryURL      string   `json:"directoryUrl"`      // Public instance directory; empty disables discovery
	StaticInstances   []string `json:"staticInstances"`   // Fallback hosts when discovery fails or filters everything out
	RequestTimeoutSec int      `json:"requestTimeoutSec"` // Per-instance lookup timeout in seconds
}

// RelaySettings configures the relay fallback chain, in priority order.
type RelaySettings struct {
	Piped               RelayClassSettings `json:"piped"`
	Invidious           RelayClassSettings `json:"invidious"`
	Cobalt              RelayClassSettings `json:"cobalt"`
	DiscoveryTTLMinutes int                `json:"discoveryTtlMinutes"` // In-process instance pool cache TTL
}

type CacheSettings struct {
	Directory    string `json:"directory"`
	DatabasePath string `json:"databasePath"`
	TTLDays      int    `json:"ttlDays"` // Resolution outcomes are re-verified after this many days
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// Defaults returns the settings written on first start.
func Defaults() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 7474,
		},
		Metadata: MetadataSettings{
			Language: "en-US",
		},
		Catalog: CatalogSettings{
			Storefronts:      []string{"us", "gb", "ca", "au"},
			MinMatchScore:    0.6,
			SearchTimeoutSec: 3,
		},
		Relay: RelaySettings{
			Piped: RelayClassSettings{
				DirectoryURL:      "https://piped-instances.kavin.rocks",
				StaticInstances:   []string{"https://pipedapi.kavin.rocks", "https://pipedapi.leptons.xyz"},
				RequestTimeoutSec: 5,
			},
			Invidious: RelayClassSettings{
				DirectoryURL:      "https://api.invidious.io/instances.json?sort_by=health",
				StaticInstances:   []string{"https://inv.nadeko.net", "https://invidious.nerdvpn.de"},
				RequestTimeoutSec: 5,
			},
			Cobalt: RelayClassSettings{
				DirectoryURL:      "https://instances.cobalt.best/api/instances.json",
				StaticInstances:   []string{"https://api.cobalt.tools"},
				RequestTimeoutSec: 8,
			},
			DiscoveryTTLMinutes: 5,
		},
		Cache: CacheSettings{
			Directory:    "cache",
			DatabasePath: "cache/previews.db",
			TTLDays:      30,
		},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			MaxSize:    50, // 50 MB per file
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk, creating defaults if the file is missing.
// Omitted sections in older config files are backfilled with defaults.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			defaults := Defaults()
			if saveErr := m.Save(defaults); saveErr != nil {
				return Settings{}, saveErr
			}
			return defaults, nil
		}
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	backfill(&s)
	return s, nil
}

// backfill fills defaults for settings introduced after the config was written.
func backfill(s *Settings) {
	defaults := Defaults()

	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = defaults.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = defaults.Metadata.Language
	}

	if len(s.Catalog.Storefronts) == 0 {
		s.Catalog.Storefronts = defaults.Catalog.Storefronts
	}
	if s.Catalog.MinMatchScore == 0 {
		s.Catalog.MinMatchScore = defaults.Catalog.MinMatchScore
	}
	if s.Catalog.SearchTimeoutSec == 0 {
		s.Catalog.SearchTimeoutSec = defaults.Catalog.SearchTimeoutSec
	}

	backfillRelayClass(&s.Relay.Piped, defaults.Relay.Piped)
	backfillRelayClass(&s.Relay.Invidious, defaults.Relay.Invidious)
	backfillRelayClass(&s.Relay.Cobalt, defaults.Relay.Cobalt)
	if s.Relay.DiscoveryTTLMinutes == 0 {
		s.Relay.DiscoveryTTLMinutes = defaults.Relay.DiscoveryTTLMinutes
	}

	if strings.TrimSpace(s.Cache.Directory) == "" {
		s.Cache.Directory = defaults.Cache.Directory
	}
	if strings.TrimSpace(s.Cache.DatabasePath) == "" {
		s.Cache.DatabasePath = defaults.Cache.DatabasePath
	}
	if s.Cache.TTLDays == 0 {
		s.Cache.TTLDays = defaults.Cache.TTLDays
	}

	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = defaults.Log.File
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = defaults.Log.MaxSize
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = defaults.Log.MaxAge
	}
}

func backfillRelayClass(c *RelayClassSettings, defaults RelayClassSettings) {
	if strings.TrimSpace(c.DirectoryURL) == "" && len(c.StaticInstances) == 0 {
		*c = defaults
		return
	}
	if len(c.StaticInstances) == 0 {
		c.StaticInstances = defaults.StaticInstances
	}
	if c.RequestTimeoutSec == 0 {
		c.RequestTimeoutSec = defaults.RequestTimeoutSec
	}
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
