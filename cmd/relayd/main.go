package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/relay/internal/cache"
	"github.com/pulsechat/relay/internal/httpapi"
	"github.com/pulsechat/relay/internal/hub"
	"github.com/pulsechat/relay/internal/messaging"
	"github.com/pulsechat/relay/internal/metrics"
	"github.com/pulsechat/relay/internal/protocol"
	"github.com/pulsechat/relay/internal/ratelimit"
	"github.com/pulsechat/relay/internal/relay"
	"github.com/pulsechat/relay/internal/timeseries"
	"github.com/pulsechat/relay/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	stream := "chat"
	if v := os.Getenv("STREAM_NAME"); v != "" {
		stream = v
	}

	historyWindow := httpapi.DefaultHistoryWindow
	if v := os.Getenv("HISTORY_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			historyWindow = d
		}
	}

	writerConfig := relay.DefaultWriterConfig()
	if v := os.Getenv("WRITE_RESOLUTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			writerConfig.Resolution = d
		}
	}

	// --- Time-series store ---
	var store timeseries.Store
	if dsn := os.Getenv("TIMESERIES_DSN"); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := timeseries.OpenPostgres(ctx, dsn)
		cancel()
		if err != nil {
			log.Fatalf("failed to open time-series store: %v", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Printf("TIMESERIES_DSN not set, using in-memory store (history is lost on restart)")
		store = timeseries.NewMemoryStore()
	}
	registry := timeseries.NewRegistry(store)

	// PERSIST_MODE=tap hands persistence to the archiver process via NATS
	// instead of writing from the relay itself.
	persistMode := "inline"
	if v := os.Getenv("PERSIST_MODE"); v != "" {
		persistMode = v
	}
	if persistMode != "inline" && persistMode != "tap" {
		log.Fatalf("unknown PERSIST_MODE %q (want inline or tap)", persistMode)
	}

	var writer *relay.Writer
	if persistMode == "inline" {
		writer = relay.NewWriter(registry, stream, writerConfig)
	}
	reader := relay.NewReader(registry, stream)

	h := hub.New()
	rel := relay.New(h, writer)

	// --- Redis (recent-message cache + rate limiting) ---
	var limiter *ratelimit.Limiter
	var recent *cache.Recent
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		defer rdb.Close()

		limiter = ratelimit.NewLimiter(rdb)
		recent = cache.NewRecent(rdb, stream, cache.DefaultMaxMessages)
		rel.SetRecent(recent)
	}

	// --- NATS (event tap) ---
	var natsClient *messaging.NATSClient
	natsURL := os.Getenv("NATS_URL")
	if natsURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = natsURL

		var err error
		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		rel.SetTap(natsClient, stream)
	}
	if persistMode == "tap" && natsClient == nil {
		log.Fatalf("PERSIST_MODE=tap requires NATS_URL")
	}

	// --- Message routing ---
	dispatcher := ws.NewMessageDispatcher()

	dispatcher.Register(protocol.TypeUserJoin, func(conn *ws.Connection, msg interface{}) {
		join, ok := msg.(protocol.UserJoinMsg)
		if !ok {
			return
		}
		if err := rel.HandleUserJoin(join.Name); err != nil {
			dispatcher.SendError(conn, "invalid_name", err.Error())
			return
		}
		h.SetName(conn.ID, join.Name)
	})

	dispatcher.Register(protocol.TypeChatMessage, func(conn *ws.Connection, msg interface{}) {
		chat, ok := msg.(protocol.ChatMsg)
		if !ok {
			return
		}

		if limiter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			allowed, err := limiter.Allow(ctx, conn.ID, ratelimit.RuleMessage)
			cancel()
			if err != nil {
				log.Printf("[ratelimit] check failed session=%s: %v", conn.ID, err)
			}
			if !allowed {
				dispatcher.SendError(conn, "rate_limited", "too many messages, slow down")
				return
			}
		}

		sender := chat.Sender
		if sender == "" {
			sender = h.Name(conn.ID)
		}
		if err := rel.HandleChatMessage(sender, chat.Text); err != nil {
			dispatcher.SendError(conn, "invalid_message", err.Error())
		}
	})

	server := ws.NewServer(config, dispatcher.Dispatch)

	server.SetOnConnect(func(conn *ws.Connection) {
		h.Join(hub.NewSession(conn.ID, conn))
		metrics.SessionsActive.Set(float64(h.Count()))
		go replayRecent(conn, recent, reader, historyWindow)
	})

	server.SetOnDisconnect(func(connID string) {
		h.Leave(connID)
		metrics.SessionsActive.Set(float64(h.Count()))
	})

	// --- HTTP surface ---
	api := httpapi.New(rel, reader, historyWindow)
	if limiter != nil {
		api.SetLimiter(limiter)
	}
	server.Handle("/api/messages", http.HandlerFunc(api.SubmitMessage))
	server.Handle("/api/history", http.HandlerFunc(api.FetchHistory))
	server.Handle("/metrics", metrics.Handler())
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		server.Handle("/", http.FileServer(http.Dir(dir)))
	}

	log.Printf("Pulse relay server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  stream:          %s", stream)
	log.Printf("  persist_mode:    %s", persistMode)
	log.Printf("  resolution:      %s", writerConfig.Resolution)
	log.Printf("  history_window:  %s", historyWindow)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  nats_url:        %s", natsURL)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// replayRecent pushes a short message backlog to a newly connected session,
// preferring the Redis ring and falling back to the store.
func replayRecent(conn *ws.Connection, recent *cache.Recent, reader *relay.Reader, window time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var msgs []protocol.ChatMsg
	if recent != nil {
		cached, err := recent.Get(ctx)
		if err != nil {
			log.Printf("[replay] recent cache read failed session=%s: %v", conn.ID, err)
		}
		for _, m := range cached {
			msgs = append(msgs, protocol.ChatMsg{Sender: m.Sender, Text: m.Text, Ts: m.Ts})
		}
	}

	if len(msgs) == 0 {
		rows, err := reader.Recent(ctx, window)
		if err != nil {
			log.Printf("[replay] history query failed session=%s: %v", conn.ID, err)
			return
		}
		if len(rows) > cache.DefaultMaxMessages {
			rows = rows[len(rows)-cache.DefaultMaxMessages:]
		}
		for _, r := range rows {
			msgs = append(msgs, protocol.ChatMsg{Sender: r.Sender, Text: r.Text, Ts: r.Ts.Unix()})
		}
	}

	if len(msgs) == 0 {
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeHistory, protocol.HistoryMsg{Messages: msgs})
	if err != nil {
		log.Printf("[replay] marshal failed: %v", err)
		return
	}
	if err := conn.Send(data); err != nil {
		log.Printf("[replay] send failed session=%s: %v", conn.ID, err)
	}
}
