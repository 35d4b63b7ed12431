package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ring_and_rip/adapters"
	"ring_and_rip/domain"
	"ring_and_rip/ports"

	"github.com/phsym/console-slog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		from        = flag.String("from", "", "From URI, e.g. sip:notifier@192.168.1.10")
		to          = flag.String("to", "", "To URI, e.g. sip:100@192.168.1.1")
		via         = flag.String("via", "", "Via host, e.g. 192.168.1.10:5060")
		contact     = flag.String("contact", "", "Contact URI (register mode only)")
		username    = flag.String("username", "", "digest auth username")
		password    = flag.String("password", "", "digest auth password")
		duration    = flag.Int("duration", 10, "ring duration in seconds before hanging up")
		register    = flag.Bool("register", false, "send a REGISTER instead of placing a call")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *from == "" || *to == "" || *via == "" {
		logger.Error("-from, -to and -via are required")
		os.Exit(2)
	}

	if *metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(*metricsAddr, promhttp.Handler()); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	cfg := domain.Config{
		URIFrom:    *from,
		URITo:      *to,
		URIVia:     *via,
		URIContact: *contact,
		Username:   *username,
		Password:   *password,
		Logger:     logger,
	}

	ringFor := time.Duration(*duration) * time.Second

	var result *ports.Result
	var err error
	if *register {
		result, err = runRegister(cfg, logger)
	} else {
		result, err = runCall(cfg, ringFor, logger)
	}
	if err != nil {
		logger.Error("attempt failed", "err", err)
		os.Exit(1)
	}

	if result != nil {
		logger.Info("completed after digest challenge", "status", result.Status)
	} else {
		logger.Info("completed")
	}
}

func runCall(cfg domain.Config, ringFor time.Duration, logger *slog.Logger) (*ports.Result, error) {
	invite, err := domain.NewInvite(cfg)
	if err != nil {
		return nil, err
	}

	driver, err := adapters.NewUDPClient(invite, cfg.URITo, logger)
	if err != nil {
		return nil, err
	}

	return domain.CallAndCancel(context.Background(), driver, invite, ringFor)
}

func runRegister(cfg domain.Config, logger *slog.Logger) (*ports.Result, error) {
	reg, err := domain.NewRegister(cfg)
	if err != nil {
		return nil, err
	}

	driver, err := adapters.NewUDPClient(reg, cfg.URITo, logger)
	if err != nil {
		return nil, err
	}

	// REGISTER never hangs up on its own, bound it by a deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := driver.Run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	return result, err
}
