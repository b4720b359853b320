package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaunagostinho/geobroker/internal/broker"
	"github.com/shaunagostinho/geobroker/internal/position"
	"github.com/shaunagostinho/geobroker/internal/server"
	"github.com/shaunagostinho/geobroker/internal/source"
)

func main() {
	configPath := flag.String("config", "/etc/geobroker/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated position sources")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] geobroker starting")

	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.High.Type = "demo"
		cfg.Low.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	high := buildSource(cfg.High, position.HighAccuracy)
	low := buildSource(cfg.Low, position.LowAccuracy)

	// Connect in the background with exponential backoff; the bridge
	// serves immediately and reports unavailable until a source is up.
	go connectWithRetry(ctx, "high", high, 10)
	go connectWithRetry(ctx, "low", low, 10)

	b := broker.New(cfg.BrokerSettings(), high, low)
	defer b.Close()

	srv := server.New(cfg, b)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// buildSource instantiates the configured source for one accuracy tier.
func buildSource(cfg server.SourceConfig, tier position.Tier) source.Source {
	switch cfg.Type {
	case "nmea":
		return source.NewNMEA(source.NMEAConfig{
			PortPath: cfg.PortPath,
			BaudRate: cfg.BaudRate,
		}, tier)
	case "mqtt":
		return source.NewMQTT(source.MQTTConfig{
			BrokerURL: cfg.BrokerURL,
			ClientID:  cfg.ClientID,
			Topic:     cfg.Topic,
		}, tier)
	case "disabled":
		return source.Disabled(tier)
	default:
		return source.NewDemo(tier)
	}
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, name string, src source.Source, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := src.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
					name, attempt, maxAttempts, err, delay)
			} else {
				log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
					name, attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Printf("[%s] %s connected (attempt %d)", name, src.Name(), attempt+1)
			return
		}
	}
}
