package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/exportsync/am"
	"github.com/teranos/exportsync/display"
	"github.com/teranos/exportsync/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage exportsync configuration",
	Long: `Manage exportsync configuration.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (EXPORTSYNC_* prefix; ADMIN_TOKEN and DATABASE_URL are also read)
3. Project config (nearest exportsync.toml, searching up directories)
4. User config (~/.exportsync/exportsync.toml)
5. System config (/etc/exportsync/exportsync.toml)
6. Default values

Examples:
  exportsync am show                    # Show current configuration
  exportsync am show --format yaml      # Show configuration in YAML format
  exportsync am show --sources          # Show where each value comes from
  exportsync am get run.batch_size      # Get a specific config value
  exportsync am validate                # Validate current configuration
  exportsync am init                    # Write defaults to ./exportsync.toml`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective exportsync configuration merged from all sources. The ingest token is redacted.",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.dsn, run.batch_size)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the effective configuration, including the ingest token that sync and sweep require.",
	Args:  cobra.NoArgs,
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the built-in defaults",
	Args:  cobra.NoArgs,
	RunE:  runAmInit,
}

var (
	configFormat  string
	configSources bool
	initPath      string
	initForce     bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&configSources, "sources", false, "List every setting with the source that set it")
	amInitCmd.Flags().StringVar(&initPath, "path", am.ConfigFileName, "Where to write the config file")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing file (the previous one is kept as .back1)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	v := am.GetViper()

	if configSources {
		settings := am.Introspect(v)
		if display.ShouldOutputJSON(cmd) {
			return display.WriteJSON(out(cmd), settings)
		}
		rows := make([][]string, 0, len(settings))
		for _, s := range settings {
			rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
		}
		return display.WriteTable(out(cmd), []string{"KEY", "VALUE", "SOURCE", "FROM"}, rows)
	}

	format := configFormat
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}
	data, err := formatSettings(am.EffectiveSettings(v), format)
	if err != nil {
		return err
	}
	_, err = out(cmd).Write(data)
	return err
}

// formatSettings encodes a nested settings map as toml, json or yaml.
func formatSettings(settings map[string]interface{}, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to JSON")
		}
		return append(data, '\n'), nil

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to YAML")
		}
		return append([]byte("# exportsync configuration\n"), data...), nil

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal config to TOML")
		}
		return append([]byte("# exportsync configuration\n"), data...), nil

	default:
		return nil, errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}

	for _, s := range am.Introspect(v) {
		if s.Key == key {
			fmt.Fprintln(out(cmd), s.Value)
			return nil
		}
	}
	// a section such as "run"
	fmt.Fprintln(out(cmd), v.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	if err := cfg.ValidateForUpload(); err != nil {
		fmt.Fprint(out(cmd), pterm.Warning.Sprintf("Configuration is valid for read-only commands: %v\n", err))
		return nil
	}

	fmt.Fprintln(out(cmd), "✓ Configuration is valid")
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if dir := filepath.Dir(path); dir == "." {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "failed to get working directory")
		}
		path = filepath.Join(wd, path)
	}

	if err := am.WriteConfigFile(path, am.DefaultSettings(), initForce); err != nil {
		return err
	}
	fmt.Fprint(out(cmd), pterm.Success.Sprintf("Wrote %s\n", path))
	fmt.Fprintln(out(cmd), "Set the ingest token with EXPORTSYNC_INGEST_TOKEN or ADMIN_TOKEN.")
	return nil
}
