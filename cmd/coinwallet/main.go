package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coin-wallet/internal/config"
	"coin-wallet/internal/handlers"
	"coin-wallet/internal/logging"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "coinwallet",
	Short: "Coin wallet and recharge service",
	Long: `coinwallet tracks per-user coin balances with an append-only ledger,
converts gateway payments into coin credits and manages recharge packages,
discount groups and invoice requests.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the order-expiry sweep",
	RunE:  runServe,
}

var expireCmd = &cobra.Command{
	Use:   "expire-orders",
	Short: "Move timed-out pending orders to expired and exit",
	RunE:  runExpire,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a TOML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(expireCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logging.Logg = logging.NewLogger(cfg.LogLevel)

	server, err := handlers.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("server creation error: %w", err)
	}

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Logg.Info("Starting server", "address", cfg.Address)
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Logg.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			logging.Logg.Info("Shutting down server gracefully")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := serv.Shutdown(ctx); err != nil {
				logging.Logg.Error("Server shutdown error", "error", err)
				return err
			}
			logging.Logg.Info("Server stopped")
			return nil

		case <-ticker.C:
			if _, err := server.Payment.ExpirePendingOrders(); err != nil {
				logging.Logg.Error("Order expiry sweep failed", "error", err)
			}
		}
	}
}

func runExpire(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logging.Logg = logging.NewLogger(cfg.LogLevel)

	server, err := handlers.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("server creation error: %w", err)
	}

	n, err := server.Payment.ExpirePendingOrders()
	if err != nil {
		return err
	}
	fmt.Printf("expired %d orders\n", n)
	return nil
}
