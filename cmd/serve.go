package cmd

import (
	"context"
	"fmt"
	"time"

	"briefly-server/chain"
	"briefly-server/config"
	"briefly-server/events"
	"briefly-server/handlers"
	"briefly-server/logger"
	"briefly-server/services"
	"briefly-server/utils"
	"briefly-server/workers"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	b, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer b.close()
	cfg, log := b.cfg, b.log

	blobs, static, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	ch, closeChain := openChain(ctx, cfg, log)
	defer closeChain()

	var matcher interface {
		services.GroupMatcher
		services.LabelExtractor
	} = services.DisabledMatcher{}
	if cfg.LLM.GoogleAPIKey != "" {
		gm, err := services.NewGeminiMatcher(ctx, cfg.LLM.GoogleAPIKey, cfg.LLM.Model)
		if err != nil {
			return err
		}
		matcher = gm
	} else {
		log.Warn("GOOGLE_API_KEY not set, lawyer search and labelling are disabled")
	}

	var nonces services.NonceStore = services.NewMemoryNonceStore()
	if cfg.RedisURL != "" {
		rs, err := services.NewRedisNonceStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rs.Close()
		nonces = rs
		log.Info("Using Redis nonce store")
	}

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		np, err := events.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer np.Close()
		pub = np
		log.Info("Publishing events to NATS", "url", cfg.NATSURL)
	}

	hub := services.NewChatHub(log)
	auth := services.NewAuthService(b.db, nonces, cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
	chat := services.NewChatService(b.db, hub)
	lawyers := services.NewLawyerService(b.db, ch, matcher, matcher, log)
	requests := services.NewRequestService(b.db, cfg.Requests.Timeout, pub, log)
	requests.Chat = chat
	escrow := services.NewEscrowService(b.db, ch, blobs, chat, pub, log)

	app := handlers.NewApp(handlers.AppOptions{
		Log:            log,
		DB:             b.db,
		AllowedOrigins: cfg.App.AllowedOrigins,
		AdminSecret:    cfg.Auth.AdminSecret,
		MaxUploadBytes: cfg.Requests.MaxUploadBytes,
		Auth:           auth,
		Lawyers:        lawyers,
		Requests:       requests,
		Escrow:         escrow,
		Chat:           chat,
		Hub:            hub,
		Blobs:          blobs,
	})
	if static != "" {
		app.Static("/uploads", static)
	}

	sched, err := requests.StartExpirySweeper(cfg.Requests.SweepInterval)
	if err != nil {
		return fmt.Errorf("start expiry sweeper: %w", err)
	}
	defer func() { _ = sched.Shutdown() }()

	if cfg.ChainEnabled() {
		go workers.PollEscrow(ctx, escrow, cfg.Requests.ReconcileInterval, log)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + cfg.App.Port)
	}()
	log.Info("Server running", "port", cfg.App.Port, "origins", cfg.App.AllowedOrigins, "chain", cfg.ChainEnabled())

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}
	return nil
}

// openBlobStore picks the storage backend. For the local backend it also
// returns the directory to serve under /uploads.
func openBlobStore(ctx context.Context, cfg *config.Config) (utils.BlobStore, string, error) {
	switch cfg.Blob.Backend {
	case "pinata":
		return utils.NewPinataStore(cfg.Blob.PinataJWT, cfg.Blob.PinataGatewayURL), "", nil
	case "r2":
		store, err := utils.NewR2Store(ctx, utils.R2Config{
			AccountID:       cfg.Blob.R2AccountID,
			AccessKeyID:     cfg.Blob.R2AccessKeyID,
			AccessKeySecret: cfg.Blob.R2AccessSecret,
			Bucket:          cfg.Blob.R2Bucket,
			CDNBaseURL:      cfg.Blob.CDNBaseURL,
			Prefix:          "briefly",
		})
		return store, "", err
	default:
		store, err := utils.NewLocalStore(cfg.Blob.UploadDir, "/uploads")
		if err != nil {
			return nil, "", fmt.Errorf("failed to ensure upload dir: %w", err)
		}
		return store, cfg.Blob.UploadDir, nil
	}
}

func openChain(ctx context.Context, cfg *config.Config, log *logger.Logger) (services.Chain, func()) {
	if !cfg.ChainEnabled() {
		log.Warn("Chain settings missing, escrow and identity minting are disabled")
		return chain.Disabled{}, func() {}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client, err := chain.Dial(dialCtx, chain.Config{
		RPCURL:                cfg.Chain.RPCURL,
		ChainID:               cfg.Chain.ChainID,
		PrivateKey:            cfg.Chain.PrivateKey,
		OrchestratorAddress:   cfg.Chain.OrchestratorAddress,
		LawyerIdentityAddress: cfg.Chain.LawyerIdentityAddress,
		PaymentTokenDecimals:  cfg.Chain.PaymentTokenDecimals,
	})
	if err != nil {
		log.Error("Chain client unavailable, escrow is disabled", "error", err)
		return chain.Disabled{}, func() {}
	}
	log.Info("Connected to chain", "rpc", cfg.Chain.RPCURL)
	return client, client.Close
}
