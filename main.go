package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"alcove-api/api"
	"alcove-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	dataDir := envString("DATA_DIR", "data")
	store, err := storage.New(dataDir, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var backend api.Storage = store
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))
		ttl := envDur("CACHE_TTL", time.Minute)
		backend = storage.NewCache(store, rc, ttl)
	}

	auth := authFromEnv(logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.DecompressRequests())

	api.Register(e, backend, auth, logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		if err := e.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("server shutdown")
		}
		// Queued transactions drain before the process exits.
		store.Close()
	}()

	listenAddr := ":" + envString("PORT", "8080")
	if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}

func authFromEnv(logger *log.Logger) *api.Auth {
	if secret := os.Getenv("AUTH_SHARED_SECRET"); secret != "" {
		return api.NewSharedSecretAuth(secret)
	}
	if domain := os.Getenv("AUTH0_DOMAIN"); domain != "" {
		audience := os.Getenv("AUTH0_AUDIENCE")
		if audience == "" {
			log.Fatal("AUTH0_AUDIENCE must be set when AUTH0_DOMAIN is")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		keyTTL := envDur("JWKS_KEY_CACHE_TTL", 15*time.Minute)
		return api.NewJWKSAuth(jwks, audience, "https://"+domain+"/", keyTTL)
	}
	logger.Warn("no auth configured; accepting all requests")
	return api.NewOpenAuth()
}

// redisOptions parses either a redis URL or the comma-separated
// host,password=...,ssl=true form some managed providers hand out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", key, v)
	}
	return d
}
