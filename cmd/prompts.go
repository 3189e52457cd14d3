package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docintel/internal/logger"
	"docintel/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect and manage the extraction prompt set",
}

var promptsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active prompt set",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		var store prompt.Store = prompt.NewMemoryStore(nil)
		if path != "" {
			store = prompt.NewFileStore(path)
		}
		set, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(set, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var promptsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default prompt set to a file for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("prompts")

		path, _ := cmd.Flags().GetString("file")
		force, _ := cmd.Flags().GetBool("force")
		if path == "" {
			return fmt.Errorf("--file is required")
		}

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		store := prompt.NewFileStore(path)
		if err := store.Save(cmd.Context(), prompt.DefaultPromptSet()); err != nil {
			return err
		}

		log.Info().Str("file", path).Msg("Default prompt set written")
		fmt.Printf("Default prompt set written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	promptsCmd.AddCommand(promptsInitCmd)

	promptsShowCmd.Flags().StringP("file", "f", "", "Prompt set file (default: built-in prompts)")
	promptsInitCmd.Flags().StringP("file", "f", "", "Destination prompt set file")
	promptsInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}
