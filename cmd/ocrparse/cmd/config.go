package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/ocrparse/internal/config"
)

const redacted = "********"

// configCmd groups the configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML, secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeConfigYAML(cmd.OutOrStdout(), *GetConfig())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a configuration file with every default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.GenerateDefaultConfigFile(path); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List where configuration is looked up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		bold := color.New(color.Bold)
		_, _ = bold.Fprintln(w, "Search paths:")
		for _, p := range config.GetConfigSearchPaths() {
			_, _ = fmt.Fprintf(w, "  %s\n", p)
		}
		used := GetConfigLoader().GetConfigFileUsed()
		if used == "" {
			used = color.YellowString("none (defaults and environment only)")
		}
		_, _ = bold.Fprint(w, "In use: ")
		_, _ = fmt.Fprintln(w, used)
		_, _ = bold.Fprint(w, "Environment prefix: ")
		_, _ = fmt.Fprintln(w, config.EnvPrefix+"_")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathsCmd)
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
}

// writeConfigYAML prints cfg with credentials and tokens masked.
func writeConfigYAML(w io.Writer, cfg config.Config) error {
	for _, s := range []*string{&cfg.API.Password, &cfg.API.AccessToken, &cfg.API.RefreshToken, &cfg.Store.DSN} {
		if *s != "" {
			*s = redacted
		}
	}
	if len(cfg.OCR.UserArgs) > 0 {
		args := make(map[string]any, len(cfg.OCR.UserArgs))
		for k, v := range cfg.OCR.UserArgs {
			if k == config.UserArgAccessToken || k == config.UserArgRefreshToken || k == config.UserArgPassword {
				v = redacted
			}
			args[k] = v
		}
		cfg.OCR.UserArgs = args
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}
