// ABOUTME: Entry point for the hsauthd authentication server
// ABOUTME: Wires config, stores, verifier, and HTTP API together

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"github.com/hypersign-protocol/hypersign-auth-go/internal/auth"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/config"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/credential"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/events"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/httpapi"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/mail"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/session"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/subscription"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/token"
	"github.com/hypersign-protocol/hypersign-auth-go/internal/tokenstore"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _                      _   _         _
| |__  ___  __ _ _   _| |_| |__   __| |
| '_ \/ __|/ _' | | | | __| '_ \ / _' |
| | | \__ \ (_| | |_| | |_| | | | (_| |
|_| |_|___/\__,_|\__,_|\__|_| |_|\__,_|
`

// getConfigPath returns the path to the hsauthd config file.
// Priority: HSAUTH_CONFIG env var > XDG_CONFIG_HOME/hsauth/hsauthd.yaml > ~/.config/hsauth/hsauthd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HSAUTH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "hsauthd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hsauth", "hsauthd.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hsauthd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the authentication server")
		fmt.Println("  health    Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:   %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Node:   %s\n", cfg.Node.URL)
	if cfg.Redis.Addr != "" {
		green.Print("    ▶ ")
		fmt.Printf("Redis:  %s\n", cfg.Redis.Addr)
	}
	fmt.Println()

	logger.Info("starting hsauthd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"node_url", cfg.Node.URL,
	)

	// Refresh token store: Redis when configured, in-memory otherwise.
	var tokens tokenstore.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		tokens = tokenstore.NewRedis(client)
	} else {
		memory := tokenstore.NewMemory()
		defer memory.Close()
		tokens = memory
	}

	sessions := session.NewStore(cfg.Session.PendingTTL, logger)
	defer sessions.Close()

	issuer := token.NewIssuer(
		[]byte(cfg.JWT.AccessSecret),
		[]byte(cfg.JWT.RefreshSecret),
		cfg.JWT.AccessTTL,
		cfg.JWT.RefreshTTL,
		tokens,
	)

	verifier := credential.NewNodeClient(cfg.Node.URL, cfg.Node.SchemaID)
	keys := credential.KeyPair{
		PublicKeyID:      cfg.Node.PublicKeyID,
		PrivateKeyBase58: cfg.Node.PrivateKeyBase58,
	}

	var gatekeeper auth.Gatekeeper
	if cfg.Subscription.Enabled {
		appCredential, err := loadAppCredential(cfg.Subscription.CredentialPath)
		if err != nil {
			return fmt.Errorf("loading app credential: %w", err)
		}
		gatekeeper = subscription.New(verifier, appCredential, keys, cfg.Subscription.VerifyURL, logger)
	}

	var mailer mail.Sender
	if cfg.Mail.Host != "" {
		mailer = mail.NewSMTPSender(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password, cfg.Mail.From)
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()
	publisher := events.NewWatermillPublisher(pubsub)

	service := auth.NewService(verifier, issuer, tokens, sessions, gatekeeper, mailer, publisher, logger, auth.Options{
		BaseURL: cfg.Server.BaseURL,
		NodeURL: cfg.Node.URL,
		AppName: cfg.Mail.AppName,
		Keys:    keys,
	})

	mux := http.NewServeMux()
	httpapi.New(service, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// loadAppCredential reads the service's own credential from disk.
func loadAppCredential(path string) (*credential.VerifiableCredential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vc credential.VerifiableCredential
	if err := json.Unmarshal(data, &vc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &vc, nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
