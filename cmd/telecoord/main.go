package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/navikt/telecoord/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "telecoord",
	Short: "Real-time coordinator for scheduled video consultations",
	Long: `telecoord admits a patient and a doctor into the room of their booked
appointment, relays WebRTC signaling between them and records when the
session started and ended.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A local .env is optional
		_ = godotenv.Load()
		return config.LoadFile(cfgFile)
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, toml or .env)")
	rootCmd.AddCommand(serveCmd, sweepCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
