package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"gridchain/config"
	"gridchain/core"
	"gridchain/gateway/middleware"
	"gridchain/gateway/routes"
	nativecommon "gridchain/native/common"
	"gridchain/observability/logging"
	"gridchain/rpc"
	"gridchain/storage"
)

const (
	envName      = "GRID_ENV"
	jwtSecretEnv = "GRID_GATEWAY_JWT_SECRET"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv(envName))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("gridd", env, logging.Options{Path: cfg.LogPath})
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}

	pauses := nativecommon.Pauses{}
	for _, module := range cfg.PausedModules {
		pauses[strings.TrimSpace(module)] = true
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, owner, pauses)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize node: %v", err))
	}
	logger.Info("Node initialized",
		slog.String("network", cfg.NetworkName),
		slog.Uint64("height", node.Height()),
	)

	server := rpc.NewServer(node)

	if strings.TrimSpace(cfg.GatewayAddress) != "" {
		go func() {
			if err := startGateway(cfg, logger); err != nil {
				logger.Error("Gateway stopped", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}

	logger.Info("JSON-RPC listening", slog.String("address", cfg.RPCAddress))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func startGateway(cfg *config.Config, logger *slog.Logger) error {
	target, err := url.Parse("http://" + cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("parse rpc address: %w", err)
	}

	secret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    secret != "",
		HMACSecret: secret,
		Audience:   cfg.NetworkName,
	}, logger)

	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"rpc": {RequestsPerMinute: 600, Burst: 20},
	}, logger)

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "grid-gateway",
		LogRequests: true,
		Enabled:     true,
	}, logger)

	handler, err := routes.New(routes.Config{
		Routes: []routes.ServiceRoute{
			{
				Name:         "rpc",
				Prefix:       "/v1/rpc",
				Target:       target,
				RequireAuth:  secret != "",
				RateLimitKey: "rpc",
			},
		},
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS:          middleware.CORSConfig{},
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("configure gateway: %w", err)
	}

	logger.Info("Gateway listening", slog.String("address", cfg.GatewayAddress))
	return http.ListenAndServe(cfg.GatewayAddress, handler)
}
