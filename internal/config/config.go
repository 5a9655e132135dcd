// Package config loads the demo client configuration from command
// line flags and environment variables.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds the voice client configuration
type Config struct {
	// Signaling settings
	Host string
	Port int

	// Authentication: a credential pair or a bearer token
	Login    string
	Password string
	Token    string

	// ICE settings
	STUNServer     string
	TURNServer     string
	TURNUsername   string
	TURNCredential string

	AutoReconnect bool
	Debug         bool
	LogLevel      string
	MetricsAddr   string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Host, "host", "rtc.telnyx.com", "Signaling host")
	flag.IntVar(&cfg.Port, "port", 443, "Signaling port")
	flag.StringVar(&cfg.Login, "login", "", "SIP credential login")
	flag.StringVar(&cfg.Password, "password", "", "SIP credential password")
	flag.StringVar(&cfg.Token, "token", "", "Login token (used instead of credentials when set)")
	flag.StringVar(&cfg.STUNServer, "stun", "", "STUN server URL (stun:host:port)")
	flag.StringVar(&cfg.TURNServer, "turn", "", "TURN server URL (turn:host:port)")
	flag.StringVar(&cfg.TURNUsername, "turn-user", "", "TURN username")
	flag.StringVar(&cfg.TURNCredential, "turn-pass", "", "TURN credential")
	flag.BoolVar(&cfg.AutoReconnect, "auto-reconnect", true, "Reconnect automatically on transient failures")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose call quality diagnostics")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.MetricsAddr, "metrics", "", "Prometheus metrics listen address (disabled when empty)")
	flag.Parse()

	// Override with environment variables if set
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if login := os.Getenv("LOGIN"); login != "" {
		cfg.Login = login
	}
	if password := os.Getenv("PASSWORD"); password != "" {
		cfg.Password = password
	}
	if token := os.Getenv("TOKEN"); token != "" {
		cfg.Token = token
	}
	if loglevel := os.Getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}
	if metrics := os.Getenv("METRICS_ADDR"); metrics != "" {
		cfg.MetricsAddr = metrics
	}

	return cfg
}
