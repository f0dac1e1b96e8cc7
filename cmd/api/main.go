package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/securedata/internal/auth"
	"github.com/geocoder89/securedata/internal/config"
	"github.com/geocoder89/securedata/internal/db"
	httpx "github.com/geocoder89/securedata/internal/http"
	"github.com/geocoder89/securedata/internal/http/handlers"
	"github.com/geocoder89/securedata/internal/mailer"
	"github.com/geocoder89/securedata/internal/observability"
	"github.com/geocoder89/securedata/internal/redisclient"
	"github.com/geocoder89/securedata/internal/repo/memory"
	"github.com/geocoder89/securedata/internal/repo/postgres"
	"github.com/geocoder89/securedata/internal/security"
	"github.com/geocoder89/securedata/internal/service"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(ctx, "securedata-api", cfg.OTLPEndpoint, cfg.Env)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			sctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	cipher, signer, err := buildCrypto(cfg, log)
	if err != nil {
		return err
	}

	prom := observability.NewProm()
	checks := map[string]handlers.PingFunc{}

	var (
		usersStore  service.UsersStore
		emailsStore service.EmailsStore
	)

	switch cfg.StoreDriver {
	case "postgres":
		mctx, cancel := config.WithTimeout(30 * time.Second)
		err := db.Migrate(mctx, cfg.DBURL)
		cancel()
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		pool, err := db.NewPool(cfg.DBURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		usersStore = postgres.NewUsersRepo(pool, prom)
		emailsStore = postgres.NewEmailsRepo(pool, prom)
		checks["db"] = pool.Ping

	default:
		log.Warn("using in-memory store; data is lost on restart")
		usersStore = memory.NewUsersRepo()
		emailsStore = memory.NewEmailsRepo()
	}

	deps := httpx.Deps{
		Config: cfg,
		Prom:   prom,
		Checks: checks,
	}

	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		pctx, cancel := config.WithTimeout(2 * time.Second)
		if err := rc.Ping(pctx); err != nil {
			log.Warn("redis unreachable at startup; rate limiting fails open", "err", err)
		}
		cancel()

		deps.Limiter = rc
		checks["redis"] = rc.Ping
	}

	if cfg.JWTSecret != "" {
		jwtManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL())
		if err != nil {
			return fmt.Errorf("jwt manager: %w", err)
		}
		deps.Auth = jwtManager
	} else {
		log.Warn("JWT_SECRET not set; admin routes disabled")
	}

	protected := mailer.NewProtectedMailer(buildMailer(cfg, log), mailer.ProtectedMailerConfig{
		Timeout: cfg.MailTimeout(),
	})

	deps.Users = service.NewUserService(usersStore, cipher, prom, log)
	deps.Mail = service.NewMailService(signer, protected, emailsStore, prom, log)

	// set up routers with the log
	router := httpx.NewRouter(log, deps)

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// send-email may sit through mailer retries
		WriteTimeout: 3*cfg.MailTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver, "mail", cfg.MailDriver)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// buildCrypto derives the name cipher and the message signer. Outside prod a
// missing ENCRYPTION_KEY gets a per-process random key.
func buildCrypto(cfg config.Config, log *slog.Logger) (*security.Cipher, *security.Signer, error) {
	master := []byte(cfg.EncryptionKey)

	if len(master) == 0 {
		random, err := security.RandomBytes(security.KeySize)
		if err != nil {
			return nil, nil, err
		}
		master = random
		log.Warn("ENCRYPTION_KEY not set; using a random key, stored names will not survive a restart")
	}

	keys, err := security.DeriveKeys(master)
	if err != nil {
		return nil, nil, fmt.Errorf("derive keys: %w", err)
	}

	cipher, err := security.NewCipher(keys.Encryption)
	if err != nil {
		return nil, nil, fmt.Errorf("cipher: %w", err)
	}

	signingKey := keys.Signing
	if cfg.SigningSecret != "" {
		signingKey = []byte(cfg.SigningSecret)
	}

	signer, err := security.NewSigner(signingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: %w", err)
	}

	return cipher, signer, nil
}

func buildMailer(cfg config.Config, log *slog.Logger) mailer.Mailer {
	if cfg.MailDriver == "smtp" {
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}

	return mailer.NewLogMailer(log)
}
