package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/internship-compass/internal/completion"
	"github.com/jonathan/internship-compass/internal/config"
	"github.com/jonathan/internship-compass/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort     int
	serveSeed     bool
	serveSecure   bool
	serveLanguage string
	serveMaxSess  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long:  `Start an HTTP server that renders the recommendation page and exposes the translation API.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "Write the built-in catalog to the database before serving")
	serveCmd.Flags().BoolVar(&serveSecure, "secure-cookies", false, "Mark cookies Secure (serve behind HTTPS)")
	serveCmd.Flags().StringVar(&serveLanguage, "language", "", "Language for visitors without a saved choice")
	serveCmd.Flags().IntVar(&serveMaxSess, "max-sessions", 0, "Maximum live sessions (default 10000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = applyServeFlags(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	cat, closeDB, err := loadCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	defer closeDB()

	cookieCfg, err := config.NewCookieConfig(cfg.CookieSecret)
	if err != nil {
		return fmt.Errorf("failed to create cookie config: %w", err)
	}

	svc := completion.NewService(client)
	srv, err := server.New(server.Config{
		Port:            cfg.Port,
		InitialLanguage: cfg.DefaultLanguage,
		SessionTTL:      time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		MaxSessions:     serveMaxSess,
		SecureCookies:   serveSecure,
		Cookie:          cookieCfg,
	}, cat, svc, svc)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}

// applyServeFlags lets explicitly set flags win over file and environment values.
func applyServeFlags(cfg config.Config) config.Config {
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveSeed {
		cfg.SeedCatalog = true
	}
	if serveLanguage != "" {
		cfg.DefaultLanguage = serveLanguage
	}
	return cfg
}
