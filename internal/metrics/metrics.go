// Package metrics holds the bot's Prometheus collectors and the HTTP
// endpoint that exposes them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "discbot"

var (
	Registry = prometheus.NewRegistry()

	Players = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guild_players_created_total",
		Help:      "Number of guild players created since start.",
	})

	TracksStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_started_total",
		Help:      "Tracks whose transmission started.",
	})

	TrackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "track_failures_total",
		Help:      "Tracks that failed to start or ended with an error.",
	})

	TracksEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracks_enqueued_total",
		Help:      "Tracks admitted to a guild queue.",
	})

	Disconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_disconnects_total",
		Help:      "Voice teardowns by reason.",
	}, []string{"reason"})

	PanelOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "panel_operations_total",
		Help:      "Panel transport operations by kind and result.",
	}, []string{"op", "result"})

	Resolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Query resolutions by source kind and result.",
	}, []string{"kind", "result"})

	LLMRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "LLM chat requests by outcome.",
	}, []string{"outcome"})

	LLMLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_seconds",
		Help:      "Latency of successful LLM chat requests.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
	})
)

func init() {
	Registry.MustRegister(
		Players,
		TracksStarted,
		TrackFailures,
		TracksEnqueued,
		Disconnects,
		PanelOps,
		Resolutions,
		LLMRequests,
		LLMLatency,
	)
}

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
