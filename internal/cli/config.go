package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scbrown/cwhy/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Show or modify configuration",
		Long: `View or change cwhy configuration stored in ~/.cwhy/config.toml.

With no arguments, shows all configuration settings.
With one argument, shows the value of that key.
With two arguments, sets the key to the given value; an empty value unsets it.

Flags always override the config file, which overrides the built-in defaults.

Settings:
  llm               Model to use (default gpt-3.5-turbo)
  timeout           Timeout for API calls in seconds (default 60)
  max_error_tokens  Token budget for compiler output (default 1920)
  max_code_tokens   Token budget for source excerpts (default 1920)
  tokenizer         Token counting method: "approx" or "tiktoken"
  history_db        SQLite database recording explanations ("default" for
                    ~/.cwhy/history.db); unset disables history
  context_lines     Source lines shown around each location (default 5)`,
		Example: `  cwhy config
  cwhy config llm
  cwhy config llm gpt-4
  cwhy config history_db default
  cwhy config timeout ""`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 2 {
				return usageErrorf("config accepts at most 2 arguments, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			switch len(args) {
			case 0:
				return a.showConfig(cfg, jsonOutput)
			case 1:
				return a.getConfig(cfg, args[0])
			default:
				return a.setConfig(cfg, args[0], args[1])
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func (a *app) showConfig(cfg *config.Config, jsonOutput bool) error {
	w := a.env.Stdout
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE")
	for _, key := range config.ValidKeys() {
		val, _ := cfg.Get(key)
		if val == "" {
			val = "(not set)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", key, val)
	}
	return tw.Flush()
}

func (a *app) getConfig(cfg *config.Config, key string) error {
	val, err := cfg.Get(key)
	if err != nil {
		return err
	}
	if val == "" {
		return nil
	}
	fmt.Fprintln(a.env.Stdout, val)
	return nil
}

func (a *app) setConfig(cfg *config.Config, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := a.saveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(a.env.Stdout, "%s = %s\n", key, value)
	return nil
}
