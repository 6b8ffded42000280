package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NamanBalaji/tfetch/internal/ledger"
	"github.com/NamanBalaji/tfetch/internal/logger"
)

const namespace = "tfetch"

var (
	PiecesVerified = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pieces_verified",
		Help:      "Planned pieces that passed hash verification.",
	})

	PiecesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pieces_total",
		Help:      "Pieces planned for the selected files.",
	})

	BytesVerified = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bytes_verified",
		Help:      "Selected bytes covered by verified pieces.",
	})

	BytesTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bytes_total",
		Help:      "Total bytes of the selected files.",
	})

	DownloadRateBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "download_rate_bytes",
		Help:      "Verified bytes per second over the rate window.",
	})

	PieceFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "piece_failures_total",
		Help:      "Pieces that failed hash verification and were requeued.",
	})

	PieceEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "piece_events_total",
		Help:      "Piece lifecycle events received from the transfer engine, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		PiecesVerified,
		PiecesTotal,
		BytesVerified,
		BytesTotal,
		DownloadRateBytes,
		PieceFailuresTotal,
		PieceEventsTotal,
	)
}

// ObserveSnapshot publishes a progress snapshot to the gauges.
func ObserveSnapshot(s ledger.Snapshot) {
	PiecesVerified.Set(float64(s.PiecesVerified))
	PiecesTotal.Set(float64(s.PiecesTotal))
	BytesVerified.Set(float64(s.BytesVerified))
	BytesTotal.Set(float64(s.BytesTotal))
	DownloadRateBytes.Set(s.RatePerSecond)
}

// ObserveEvent counts a ledger event. It matches ledger.WithEventHook.
func ObserveEvent(ev ledger.Event, err error) {
	outcome := "applied"
	if err != nil {
		outcome = "rejected"
	}

	PieceEventsTotal.WithLabelValues(ev.Kind.String(), outcome).Inc()

	if err == nil && ev.Kind == ledger.PieceFailed {
		PieceFailuresTotal.Inc()
	}
}

// Serve exposes the registry on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Infof("Serving metrics on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}
