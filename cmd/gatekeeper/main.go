package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/cgraph/gatekeeper/adapters/breach"
	"github.com/cgraph/gatekeeper/adapters/events"
	"github.com/cgraph/gatekeeper/adapters/store"
	"github.com/cgraph/gatekeeper/adapters/tokenizer"
	"github.com/cgraph/gatekeeper/config"
	"github.com/cgraph/gatekeeper/service"
	transport "github.com/cgraph/gatekeeper/transport/http"
)

func main() {
	configPath := flag.String("config", "gatekeeper.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	signKey, err := loadSigningKey(cfg.Auth.SigningKeyFile)
	if err != nil {
		log.Fatalf("Failed to load signing key: %v", err)
	}

	redisURL := cfg.Redis.URL
	if env := os.Getenv("REDIS_URL"); env != "" {
		redisURL = env
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlStore.Close()

	logger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	svcOpts := []service.Option{service.WithAppName(cfg.Auth.AppName)}
	if cfg.Breach.Enabled {
		svcOpts = append(svcOpts, service.WithBreachChecker(breach.NewHIBPChecker()))
	}

	authService := service.NewAuthService(
		sqlStore,
		sqlStore,
		store.NewRedisChallengeStore(redisClient),
		store.NewRedisDenyList(redisClient),
		tokenizer.NewJWTTokenizer(signKey, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		events.NewWatermillPublisher(publisher),
		svcOpts...,
	)

	router := transport.SetupRouter(authService)

	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// loadSigningKey reads a PEM-encoded ECDSA private key, or generates an
// ephemeral one when no path is configured.
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		log.Println("warning: no signing key configured, generating an ephemeral key")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing EC private key: %w", err)
	}
	return key, nil
}
