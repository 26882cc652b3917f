// Command demo runs a small HTTP server gated by a floodgate limiter, with
// Prometheus metrics on /metrics. Useful for poking at policies with curl or
// a load generator.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/floodgate-dev/floodgate/metrics"
	"github.com/floodgate-dev/floodgate/pkg/floodgate"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	configPath := flag.String("config", "", "path to YAML config (optional)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	config := floodgate.NewConfig()
	if *configPath != "" {
		config, err = floodgate.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.String("path", *configPath), zap.Error(err))
		}
	}

	extractor, err := floodgate.ParseKeyExtractor(config.KeyExtractor)
	if err != nil {
		logger.Fatal("failed to parse key extractor", zap.Error(err))
	}

	m := metrics.New(nil)

	limiter, err := config.BuildDefault(
		floodgate.WithLogger(logger),
		floodgate.WithMetrics(m),
	)
	if err != nil {
		logger.Fatal("failed to build limiter", zap.Error(err))
	}

	if s, ok := limiter.(interface {
		StartBackgroundSweep(time.Duration) func()
	}); ok {
		defer s.StartBackgroundSweep(10 * time.Minute)()
	}

	gate := floodgate.Middleware(limiter,
		floodgate.WithExtractor(extractor),
		floodgate.WithMiddlewareLogger(logger),
	)

	mux := http.NewServeMux()
	mux.Handle("/", gate(http.HandlerFunc(helloHandler)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info("demo server listening",
		zap.String("addr", *addr),
		zap.String("algorithm", config.Defaults.Algorithm),
		zap.String("key_extractor", config.KeyExtractor))

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func helloHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "request admitted",
		"path":    r.URL.Path,
	})
}
