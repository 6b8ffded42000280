package anacrolix

import (
	"path/filepath"

	analog "github.com/anacrolix/log"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"github.com/NamanBalaji/tfetch/internal/config"
)

// minBurst keeps a limiter able to admit a whole block in one wait.
const minBurst = 64 << 10

// newClientConfig translates the user's torrent options into an anacrolix
// client config writing under dir.
func newClientConfig(cfg *config.TorrentConfig, dir string, completion storage.PieceCompletion) *torrent.ClientConfig {
	analog.Default.SetHandlers(analog.DiscardHandler)

	cc := torrent.NewDefaultClientConfig()
	cc.DataDir = dir
	cc.Seed = cfg.Seed
	cc.ListenPort = cfg.ListenPort
	cc.NoDefaultPortForwarding = true

	cc.DisableUTP = true

	cc.EstablishedConnsPerTorrent = cfg.EstablishedConnectionsPerTorrent
	cc.HalfOpenConnsPerTorrent = cfg.HalfOpenConnectionsPerTorrent
	cc.TotalHalfOpenConns = cfg.TotalHalfOpenConnections

	cc.NoDHT = cfg.DisableDHT
	cc.DisablePEX = cfg.DisablePEX
	cc.DisableTrackers = cfg.DisableTrackers
	cc.DisableIPv6 = cfg.DisableIPv6

	if l := limiter(cfg.DownloadRateLimit); l != nil {
		cc.DownloadRateLimiter = l
	}

	if l := limiter(cfg.UploadRateLimit); l != nil {
		cc.UploadRateLimiter = l
	}

	cc.DefaultStorage = newStorage(dir, completion)

	return cc
}

// limiter returns nil for non-positive limits, meaning unlimited.
func limiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(bytesPerSecond), max(int(bytesPerSecond), minBurst))
}

// newStorage lays files out as dir/<name>/<path...> for multi-file torrents
// and dir/<name> for single-file ones. A single-file torrent without a name
// is stored as dir/<hex info hash>.
func newStorage(dir string, completion storage.PieceCompletion) storage.ClientImplCloser {
	return storage.NewFileOpts(storage.NewFileClientOpts{
		ClientBaseDir:   dir,
		TorrentDirMaker: torrentDir,
		FilePathMaker:   filePath,
		PieceCompletion: completion,
	})
}

func torrentDir(baseDir string, info *metainfo.Info, infoHash metainfo.Hash) string {
	if len(info.Files) == 0 && info.BestName() == "" {
		return filepath.Join(baseDir, infoHash.HexString())
	}

	return baseDir
}

func filePath(opts storage.FilePathMakerOpts) string {
	return filepath.Join(append([]string{opts.Info.BestName()}, opts.File.BestPath()...)...)
}
