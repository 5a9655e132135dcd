package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sebas/vertolink/internal/banner"
	"github.com/sebas/vertolink/internal/config"
	"github.com/sebas/vertolink/internal/engine"
	"github.com/sebas/vertolink/internal/events"
	"github.com/sebas/vertolink/internal/logger"
	"github.com/sebas/vertolink/internal/media"
	"github.com/sebas/vertolink/internal/metrics"
)

const userAgent = "vertolink/1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	if cfg.Token == "" && (cfg.Login == "" || cfg.Password == "") {
		slog.Error("Either -token or -login/-password is required")
		os.Exit(1)
	}

	banner.Print("VertoLink Voice Client", []banner.ConfigLine{
		{Label: "Host", Value: cfg.Host},
		{Label: "Port", Value: strconv.Itoa(cfg.Port)},
		{Label: "Auth", Value: authMode(cfg)},
		{Label: "Auto-reconnect", Value: strconv.FormatBool(cfg.AutoReconnect)},
		{Label: "Debug stats", Value: strconv.FormatBool(cfg.Debug)},
	})

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
		go serveMetrics(cfg.MetricsAddr)
	}

	eng := engine.New(engine.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		UserAgent:     userAgent,
		AutoReconnect: cfg.AutoReconnect,
		Verbose:       cfg.Debug,
		Media: media.Config{
			STUNServer:     cfg.STUNServer,
			TURNServer:     cfg.TURNServer,
			TURNUsername:   cfg.TURNUsername,
			TURNCredential: cfg.TURNCredential,
		},
		MediaFactory: media.NewWebRTCSession,
		Collector:    collector,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Connect(ctx); err != nil {
		slog.Error("Connect failed", "error", err)
		os.Exit(1)
	}
	if cfg.Token != "" {
		eng.LoginWithToken(cfg.Token)
	} else {
		eng.LoginWithCredential(cfg.Login, cfg.Password)
	}

	go printEvents(eng)

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)
	eng.Disconnect()
}

func printEvents(eng *engine.Engine) {
	for ev := range eng.Events() {
		switch v := ev.(type) {
		case events.RegistrationStateChanged:
			slog.Info("Registration state", "state", v.State)
		case events.LoginSuccess:
			slog.Info("Logged in", "session_id", v.SessionID)
		case events.ClientReady:
			slog.Info("Client ready")
		case events.IncomingCall:
			slog.Info("Incoming call", "call_id", v.CallID, "from", v.CallerIDNumber, "name", v.CallerIDName)
		case events.CallStateChanged:
			if v.Reason != nil {
				slog.Info("Call state", "call_id", v.CallID, "state", v.State, "cause", v.Reason.Cause)
			} else {
				slog.Info("Call state", "call_id", v.CallID, "state", v.State)
			}
		case events.Ringing:
			slog.Info("Remote ringing", "call_id", v.CallID)
		case events.Quality:
			slog.Debug("Quality sample", "call_id", v.CallID, "mos", fmt.Sprintf("%.2f", v.Sample.MOS), "band", v.Sample.Band)
		case events.Latency:
			if v.Report.CallID != nil {
				slog.Info("Call latency", "call_id", *v.Report.CallID, "setup_ms", deref(v.Report.CallSetupLatencyMs))
			} else {
				slog.Info("Registration latency", "ms", deref(v.Report.RegistrationLatencyMs))
			}
		case events.Error:
			slog.Error("Engine error", "code", v.Code, "message", v.Message, "transient", v.Transient)
		case events.Disconnected:
			slog.Warn("Disconnected", "reconnecting", v.Reconnecting)
			if !v.Reconnecting {
				return
			}
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("Metrics available", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Metrics server error", "error", err)
	}
}

func authMode(cfg *config.Config) string {
	if cfg.Token != "" {
		return "token"
	}
	return "credential (" + cfg.Login + ")"
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
