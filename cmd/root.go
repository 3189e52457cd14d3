package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docintel/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "docintel",
	Short: "Document intelligence pipeline for care-home records",
	Long: `docintel recognizes photographed medical documents for a residential
care facility: it normalizes the photo, checks the recognition cache,
runs OCR and AI field extraction, classifies the document type and
ranks possible resident matches for human confirmation.`,
	Version: version,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
