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

	"rightshub.io/internal/auth"
	"rightshub.io/internal/httpapi"
	"rightshub.io/internal/obs"
	"rightshub.io/internal/ratelimit"
	"rightshub.io/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("RIGHTSHUB_COMMIT"))

	dsn := os.Getenv("RIGHTSHUB_PG_DSN")
	if dsn == "" {
		log.Fatal("RIGHTSHUB_PG_DSN is required")
	}
	secret := os.Getenv("RIGHTSHUB_AUTH_SECRET")
	if secret == "" {
		log.Fatal("RIGHTSHUB_AUTH_SECRET is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	authn := auth.NewAuthenticator(store,
		auth.WithSessionSecret([]byte(secret)),
		auth.WithIssuer(envOr("RIGHTSHUB_ISSUER", "rightshub-iam")),
	)
	lifecycle := auth.NewLifecycleManager(store)

	// Shared counters when Redis is configured; per-process otherwise.
	var (
		counter   ratelimit.Allower
		redisPing func(ctx context.Context) error
	)
	if addr := os.Getenv("RIGHTSHUB_REDIS_ADDR"); addr != "" {
		rc, err := ratelimit.NewRedisCounter(addr, os.Getenv("RIGHTSHUB_REDIS_PASSWORD"), envInt("RIGHTSHUB_REDIS_DB", 0))
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rc.Close()
		counter = rc
		redisPing = rc.Ping
	} else {
		counter = ratelimit.NewMemoryCounter(0)
	}
	limiter := ratelimit.NewService(counter, ratelimit.Limits{
		ReadPerMinute:  envInt("RIGHTSHUB_RATE_READ_PER_MIN", ratelimit.DefaultReadPerMinute),
		WritePerMinute: envInt("RIGHTSHUB_RATE_WRITE_PER_MIN", ratelimit.DefaultWritePerMinute),
	})

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB(), Redis: redisPing}, version, authn, lifecycle, limiter)

	var handler http.Handler = api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.IPRateLimit(handler,
		envInt("RIGHTSHUB_IP_RATE_PER_SEC", 20), envInt("RIGHTSHUB_IP_RATE_BURST", 40))
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              envOr("RIGHTSHUB_LISTEN", ":8080"),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Expired credentials are also caught lazily at validation; this sweep
	// keeps the table and list views honest.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runExpirySweep(sweepCtx, lifecycle)

	log.Printf("Starting rightshub-iam %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	obs.SetReady(false)
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func runExpirySweep(ctx context.Context, lifecycle *auth.LifecycleManager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := lifecycle.SweepExpired(ctx)
			if err != nil {
				obs.LogEntry(map[string]any{
					"level": "warn",
					"msg":   "expiry sweep failed",
					"error": err.Error(),
				})
				continue
			}
			if n > 0 {
				obs.LogEntry(map[string]any{
					"level": "info",
					"msg":   "expired credentials swept",
					"count": n,
				})
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s: invalid integer %q", key, v)
	}
	return n
}
