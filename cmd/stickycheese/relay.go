package main

import (
	"flag"
	"fmt"

	"github.com/jedarden/stickycheese/internal/config"
	"github.com/jedarden/stickycheese/internal/logging"
	"github.com/jedarden/stickycheese/internal/relay"
)

func runRelay(args []string) error {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	port := fs.Int("port", 0, "Port to listen on (overrides STICKYCHEESE_PORT)")
	origins := fs.String("origins", "", "Allowed CORS origins, comma separated")
	rateLimit := fs.Bool("rate-limit", false, "Enable per-client rate limiting")
	rateLimitReqs := fs.Int("rate-limit-requests", 0, "Requests per window (default: 60)")
	rateLimitWindow := fs.Int("rate-limit-window", 0, "Window in seconds (default: 60)")
	rateLimitBurst := fs.Int("rate-limit-burst", 0, "Burst allowance (default: 10)")
	debug := fs.Bool("debug", false, "Log forwarded headers (masked)")
	fs.Parse(args)

	logging.ConfigureForStdout()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *origins != "" {
		cfg.AllowedOrigins = config.ParseOrigins(*origins)
	}
	if *rateLimit {
		cfg.RateLimitEnabled = true
	}
	if *rateLimitReqs != 0 {
		cfg.RateLimitRequests = *rateLimitReqs
	}
	if *rateLimitWindow != 0 {
		cfg.RateLimitWindow = *rateLimitWindow
	}
	if *rateLimitBurst != 0 {
		cfg.RateLimitBurst = *rateLimitBurst
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Debug {
		if err := logging.EnableDebugLogging(); err != nil {
			return err
		}
		defer logging.DisableDebugLogging()
	}

	return relay.NewServer(cfg, version).Start()
}
