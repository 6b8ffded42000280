package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NamanBalaji/tfetch/internal/config"
	"github.com/NamanBalaji/tfetch/internal/console"
	"github.com/NamanBalaji/tfetch/internal/errors"
	"github.com/NamanBalaji/tfetch/internal/logger"
	"github.com/NamanBalaji/tfetch/internal/metrics"
	"github.com/NamanBalaji/tfetch/internal/repository"
	"github.com/NamanBalaji/tfetch/internal/session"
	"github.com/NamanBalaji/tfetch/internal/transfer/anacrolix"
)

// version is set at link time with -ldflags "-X main.version=...".
var version string

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func versionString() string {
	if version != "" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return "dev"
}

func run(args []string, stdout io.Writer) int {
	cfg, err := config.GetConfig()
	if err != nil {
		return fail(errors.NewConfigError(err, config.Path()))
	}

	fs := flag.NewFlagSet("tfetch", flag.ContinueOnError)

	dir := fs.String("dir", cfg.Dir, "output directory")
	pattern := fs.String("pattern", cfg.Pattern, "regular expression matched against the whole in-torrent path (empty selects every file)")
	overwrite := fs.Bool("overwrite", cfg.Overwrite, "replace selected files that already exist")
	name := fs.String("name", "", "move the single selected file to this name in the output directory when done")
	interval := fs.Duration("interval", cfg.PollInterval, "progress reporting interval")
	readahead := fs.Int("readahead", cfg.Readahead, "pieces per file fetched ahead of the rest")
	maxFailures := fs.Int("max-failures", cfg.MaxPieceFailures, "abort after this many failed piece checks (0 means never)")
	logFile := fs.String("log", cfg.LogFile, "also write logs to this file")
	metricsAddr := fs.String("metrics", cfg.MetricsAddr, "serve prometheus metrics on this address")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	seed := fs.Bool("seed", cfg.Torrent.Seed, "upload to peers while downloading")
	noDHT := fs.Bool("no-dht", cfg.Torrent.DisableDHT, "disable DHT peer discovery")
	noPEX := fs.Bool("no-pex", cfg.Torrent.DisablePEX, "disable peer exchange")
	downloadLimit := fs.Int64("download-limit", cfg.Torrent.DownloadRateLimit, "download rate limit in bytes per second (0 means unlimited)")
	uploadLimit := fs.Int64("upload-limit", cfg.Torrent.UploadRateLimit, "upload rate limit in bytes per second (0 means unlimited)")
	listenPort := fs.Int("listen-port", cfg.Torrent.ListenPort, "peer listen port (0 picks a free one)")
	showVersion := fs.Bool("version", false, "print the version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tfetch [flags] <torrent url or path>\n\nConfiguration file: %s\n\n", config.Path())
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return errors.ExitFailure
	}

	if *showVersion {
		fmt.Fprintln(stdout, "tfetch", versionString())
		return errors.ExitOK
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return errors.ExitFailure
	}

	cfg.Dir = *dir
	cfg.Pattern = *pattern
	cfg.Overwrite = *overwrite
	cfg.Name = *name
	cfg.PollInterval = *interval
	cfg.Readahead = *readahead
	cfg.MaxPieceFailures = *maxFailures
	cfg.LogFile = *logFile
	cfg.MetricsAddr = *metricsAddr
	cfg.Torrent.Seed = *seed
	cfg.Torrent.DisableDHT = *noDHT
	cfg.Torrent.DisablePEX = *noPEX
	cfg.Torrent.DownloadRateLimit = *downloadLimit
	cfg.Torrent.UploadRateLimit = *uploadLimit
	cfg.Torrent.ListenPort = *listenPort

	if err := cfg.Validate(); err != nil {
		return fail(errors.NewConfigError(err, config.Path()))
	}

	if err := logger.InitLogging(*verbose, cfg.LogFile); err != nil {
		return fail(errors.NewIOError(err, cfg.LogFile))
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics.Register(reg)

		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logger.Warnf("Metrics server stopped: %v", err)
			}
		}()
	}

	repo, err := repository.NewBboltRepository(cfg.Torrent.CompletionDB)
	if err != nil {
		return fail(errors.NewIOError(err, cfg.Torrent.CompletionDB))
	}
	defer repo.Close()

	engine := anacrolix.New(cfg.Torrent, repo)
	s := session.New(cfg, engine, session.WithCompletion(repo))

	snap, err := s.Run(ctx, fs.Arg(0))
	if err != nil {
		return fail(err)
	}

	fmt.Fprintln(stdout, console.Line(40, snap))

	return errors.ExitOK
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, console.Error(err))
	return errors.ExitCode(err)
}
