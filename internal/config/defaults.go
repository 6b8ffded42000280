package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	pollInterval                     = time.Second
	maxMetadataBytes                 = 16 << 20
	readahead                        = 4
	seedTorrent                      = false
	listenPort                       = 42069
	establishedConnectionsPerTorrent = 50
	halfOpenConnectionsPerTorrent    = 25
	totalHalfOpenConnections         = 100
	disableDHT                       = false
	disablePEX                       = false
	disableTrackers                  = false
	disableIPv6                      = false
)

var (
	downloadDir  = xdg.UserDirs.Download
	completionDB = filepath.Join(xdg.DataHome, configFileName, "completion.db")
)
