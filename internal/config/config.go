package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "tfetch"

// Config holds the configuration options for the application.
type Config struct {
	Dir              string         `yaml:"dir,omitempty"`
	Pattern          string         `yaml:"pattern,omitempty"`
	Overwrite        bool           `yaml:"overwrite,omitempty"`
	PollInterval     time.Duration  `yaml:"pollInterval,omitempty"`
	LogFile          string         `yaml:"logFile,omitempty"`
	MetricsAddr      string         `yaml:"metricsAddr,omitempty"`
	MaxMetadataBytes int64          `yaml:"maxMetadataBytes,omitempty"`
	Readahead        int            `yaml:"readahead,omitempty"`
	MaxPieceFailures int            `yaml:"maxPieceFailures,omitempty"`
	Torrent          *TorrentConfig `yaml:"torrent,omitempty"`

	// Name renames the single selected file once it is complete. It is set
	// per run from the command line only.
	Name string `yaml:"-"`
}

// TorrentConfig holds the transfer engine options.
type TorrentConfig struct {
	Seed                             bool   `yaml:"seed,omitempty"`
	ListenPort                       int    `yaml:"listenPort,omitempty"`
	EstablishedConnectionsPerTorrent int    `yaml:"establishedConnectionsPerTorrent,omitempty"`
	HalfOpenConnectionsPerTorrent    int    `yaml:"halfOpenConnectionsPerTorrent,omitempty"`
	TotalHalfOpenConnections         int    `yaml:"totalHalfOpenConnections,omitempty"`
	DisableDHT                       bool   `yaml:"disableDht,omitempty"`
	DisablePEX                       bool   `yaml:"disablePex,omitempty"`
	DisableTrackers                  bool   `yaml:"disableTrackers,omitempty"`
	DisableIPv6                      bool   `yaml:"disableIPv6,omitempty"`
	DownloadRateLimit                int64  `yaml:"downloadRateLimit,omitempty"`
	UploadRateLimit                  int64  `yaml:"uploadRateLimit,omitempty"`
	CompletionDB                     string `yaml:"completionDb,omitempty"`
}

// Path returns the location of the configuration file.
func Path() string {
	return filepath.Join(xdg.ConfigHome, configFileName)
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	defaults := DefaultConfig()

	b, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	torrentCfg := zeroOr(cfg.Torrent, defaults.Torrent)

	return &Config{
		Dir:              zeroOr(cfg.Dir, defaults.Dir),
		Pattern:          cfg.Pattern,
		Overwrite:        cfg.Overwrite,
		PollInterval:     zeroOr(cfg.PollInterval, defaults.PollInterval),
		LogFile:          cfg.LogFile,
		MetricsAddr:      cfg.MetricsAddr,
		MaxMetadataBytes: zeroOr(cfg.MaxMetadataBytes, defaults.MaxMetadataBytes),
		Readahead:        zeroOr(cfg.Readahead, defaults.Readahead),
		MaxPieceFailures: cfg.MaxPieceFailures,
		Torrent: &TorrentConfig{
			Seed:                             zeroOr(torrentCfg.Seed, defaults.Torrent.Seed),
			ListenPort:                       zeroOr(torrentCfg.ListenPort, defaults.Torrent.ListenPort),
			EstablishedConnectionsPerTorrent: zeroOr(torrentCfg.EstablishedConnectionsPerTorrent, defaults.Torrent.EstablishedConnectionsPerTorrent),
			HalfOpenConnectionsPerTorrent:    zeroOr(torrentCfg.HalfOpenConnectionsPerTorrent, defaults.Torrent.HalfOpenConnectionsPerTorrent),
			TotalHalfOpenConnections:         zeroOr(torrentCfg.TotalHalfOpenConnections, defaults.Torrent.TotalHalfOpenConnections),
			DisableDHT:                       zeroOr(torrentCfg.DisableDHT, defaults.Torrent.DisableDHT),
			DisablePEX:                       zeroOr(torrentCfg.DisablePEX, defaults.Torrent.DisablePEX),
			DisableTrackers:                  zeroOr(torrentCfg.DisableTrackers, defaults.Torrent.DisableTrackers),
			DisableIPv6:                      zeroOr(torrentCfg.DisableIPv6, defaults.Torrent.DisableIPv6),
			DownloadRateLimit:                torrentCfg.DownloadRateLimit,
			UploadRateLimit:                  torrentCfg.UploadRateLimit,
			CompletionDB:                     zeroOr(torrentCfg.CompletionDB, defaults.Torrent.CompletionDB),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		Dir:              downloadDir,
		PollInterval:     pollInterval,
		MaxMetadataBytes: maxMetadataBytes,
		Readahead:        readahead,
		Torrent: &TorrentConfig{
			Seed:                             seedTorrent,
			ListenPort:                       listenPort,
			EstablishedConnectionsPerTorrent: establishedConnectionsPerTorrent,
			HalfOpenConnectionsPerTorrent:    halfOpenConnectionsPerTorrent,
			TotalHalfOpenConnections:         totalHalfOpenConnections,
			DisableDHT:                       disableDHT,
			DisablePEX:                       disablePEX,
			DisableTrackers:                  disableTrackers,
			DisableIPv6:                      disableIPv6,
			CompletionDB:                     completionDB,
		},
	}
}

// Validate rejects values the session cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Dir == "" {
		errs = append(errs, errors.New("dir: output directory is required"))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval: must be positive, got %s", c.PollInterval))
	}

	if c.MaxMetadataBytes <= 0 {
		errs = append(errs, fmt.Errorf("maxMetadataBytes: must be positive, got %d", c.MaxMetadataBytes))
	}

	if c.Readahead < 0 {
		errs = append(errs, fmt.Errorf("readahead: must not be negative, got %d", c.Readahead))
	}

	if c.MaxPieceFailures < 0 {
		errs = append(errs, fmt.Errorf("maxPieceFailures: must not be negative, got %d", c.MaxPieceFailures))
	}

	if c.Name != "" && (filepath.Base(c.Name) != c.Name || c.Name == "." || c.Name == "..") {
		errs = append(errs, fmt.Errorf("name: must be a plain file name, got %q", c.Name))
	}

	if t := c.Torrent; t != nil {
		if t.ListenPort < 0 || t.ListenPort > 65535 {
			errs = append(errs, fmt.Errorf("torrent: listenPort out of range, got %d", t.ListenPort))
		}

		if t.EstablishedConnectionsPerTorrent < 0 || t.HalfOpenConnectionsPerTorrent < 0 || t.TotalHalfOpenConnections < 0 {
			errs = append(errs, errors.New("torrent: connection limits must not be negative"))
		}

		if t.DownloadRateLimit < 0 || t.UploadRateLimit < 0 {
			errs = append(errs, errors.New("torrent: rate limits must not be negative"))
		}
	}

	return errors.Join(errs...)
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
