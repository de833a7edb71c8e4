package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finvisor/internal/bootstrap"
)

var rootCmd = &cobra.Command{
	Use:   "finvisor",
	Short: "FinVisor - financial research agent",
	Long: `FinVisor answers questions about stocks, filings and the market with a
Gemini agent backed by Yahoo Finance, SEC EDGAR, Finnhub and web search.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agent playground API and the chat page",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, ingestCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	c := bootstrap.NewContainer()
	c.MustInit()

	if err := c.Start(); err != nil {
		c.Log.Errorw("Failed to start", "error", err)
		c.Shutdown()
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Infow("Shutdown signal received", "signal", sig.String())
	case <-c.Context.Done():
		c.Log.Warn("Context cancelled, shutting down")
	}

	c.Shutdown()
	return nil
}
