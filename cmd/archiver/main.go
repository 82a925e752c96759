package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsechat/relay/internal/messaging"
	"github.com/pulsechat/relay/internal/relay"
	"github.com/pulsechat/relay/internal/timeseries"
)

func main() {
	log.Println("Starting Pulse archiver...")

	stream := "chat"
	if v := os.Getenv("STREAM_NAME"); v != "" {
		stream = v
	}

	writerConfig := relay.DefaultWriterConfig()
	if v := os.Getenv("WRITE_RESOLUTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			writerConfig.Resolution = d
		}
	}

	// The archiver exists to make events durable, so it requires a real
	// store rather than falling back to memory.
	dsn := os.Getenv("TIMESERIES_DSN")
	if dsn == "" {
		log.Fatalf("TIMESERIES_DSN is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := timeseries.OpenPostgres(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("failed to open time-series store: %v", err)
	}
	defer store.Close()

	registry := timeseries.NewRegistry(store)
	writer := relay.NewWriter(registry, stream, writerConfig)

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "pulse-archiver"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	err = natsClient.SubscribeEvents(stream, func(data []byte) {
		var event relay.TapEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("[archiver] failed to unmarshal event: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writerConfig.AppendTimeout)
		defer cancel()
		row, err := writer.Append(ctx, event.Sender, event.Text)
		if err != nil {
			log.Printf("[archiver] append failed sender=%s: %v", event.Sender, err)
			return
		}
		log.Printf("[archiver] archived sender=%s ts=%s seq=%d", event.Sender, row.Ts.Format(time.RFC3339), row.Seq)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to events: %v", err)
	}

	log.Printf("Pulse archiver running")
	log.Printf("  stream:     %s", stream)
	log.Printf("  nats_url:   %s", natsConfig.URL)
	log.Printf("  resolution: %s", writerConfig.Resolution)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
}
