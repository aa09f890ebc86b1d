package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"heliodata/pkg/archive"
	"heliodata/pkg/auth"
	"heliodata/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Create, inspect and validate the heliodata configuration file.`,
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration file",
	Long: `Write a commented example configuration to heliodata.yaml (or the path
given with --config). An existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after merging defaults, file, .env and environment. Identities are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for problems",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initConfigCmd)
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(validateConfigCmd)
}

const exampleConfig = `# heliodata configuration
#
# Values can also come from a .env file or HELIODATA_* environment
# variables (HELIODATA_PATH, HELIODATA_START, HELIODATA_END,
# HELIODATA_INTERVAL, HELIODATA_CADENCE, HELIODATA_EMAIL,
# HELIODATA_MIRROR_URL, HELIODATA_LOG_LEVEL). Command line flags win.

download:
  # Destination root; the ledger and log live here too
  root: "./data"

  # Span to download, [start, end) in UTC
  start: "2010-01-01T00:00:00"
  end: "2025-01-01T00:00:00"

  # Range granularity: year or month. Artifacts go to root/mission/product/YYYY[/MM]
  interval: "month"

  # Time between samples
  cadence: "24h"

  # How far from each sample time the archive may look for data
  margin: "15m"

  # Retry samples the archive previously reported as missing
  retry_permanent: true

  # Copy ledger.json to ledger_YYYYMMDD_HHMMSS.json before each run
  backup_ledger: true

archive:
  # Passed to the archive as-is; prefer 'heliodata auth set'
  identity: ""
  timeout: "60s"
  user_agent: "heliodata/0.2"

retry:
  enabled: true
  max_attempts: 3
  base_delay: "1s"
  max_delay: "60s"
  multiplier: 2.0
  jitter_factor: 0.1

rate_limit:
  # 0 disables rate limiting
  requests_per_minute: 30
  # Minimum gap between two requests
  min_interval: "0s"

storage:
  # Inflate .gz payloads before storing
  decompress: true
  # Record SHA-256 in metadata sidecars
  checksums: false
  write_metadata: true
  # Smaller artifacts are rejected
  min_file_size: 1
  # Keep the archive's file name instead of the sample timestamp
  keep_source_name: false

mirror:
  # Optional bucket to copy every artifact to: file:///path, s3://bucket, gs://bucket
  url: ""
  prefix: ""

logging:
  level: "info"
  # Defaults to root/heliodata.log
  file: ""
  # The log file records debug events even when the console shows less
  file_level: "debug"
  no_file: false

# Per-mission overrides. Missions other than sdo-aia need a url_template.
# Placeholders: {product}, {identity}, {time:<Go layout>}
missions:
  sdo-aia:
    products: ["0171", "0193", "0304"]
  # solo:
  #   url_template: "https://example.org/soar/{product}/{time:2006/01/02}/{product}_{time:20060102T1504}.fits"
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "heliodata.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("%s exists", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the span, cadence and destination root")
	fmt.Println("2. Run 'heliodata config validate' to check the configuration")
	fmt.Println("3. Start downloading with 'heliodata download sdo-aia'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := *cfg
	if display.Archive.Identity != "" {
		display.Archive.Identity = auth.Mask(display.Archive.Identity)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (HELIODATA_*)")
	fmt.Println("3. .env files")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (searched in default locations)")
	}
	fmt.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err)
		return err
	}

	var warnings []string
	var problems []string

	for name := range cfg.Missions {
		if _, err := archive.Lookup(name, nil); err != nil {
			problems = append(problems, fmt.Sprintf("missions.%s: unknown mission", name))
		}
	}
	start, _ := cfg.StartTime()
	for _, m := range archive.All(cfg.Missions) {
		if m.URLTemplate == "" || len(m.Products) == 0 {
			continue
		}
		if _, err := archive.RenderURL(m.URLTemplate, m.Products[0], "x", start); err != nil {
			problems = append(problems, fmt.Sprintf("missions.%s.url_template: %v", m.Name, err))
		}
	}

	if err := os.MkdirAll(cfg.Download.Root, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create destination root: %v", err))
	}
	if logFile := cfg.LogFile(); logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if cfg.Archive.Identity == "" {
		warnings = append(warnings, "no archive identity configured; JSOC exports need a registered e-mail ('heliodata auth set jsoc')")
	}
	if cfg.RateLimit.RequestsPerMinute == 0 && cfg.RateLimit.MinInterval == 0 {
		warnings = append(warnings, "rate limiting is disabled")
	}
	if !cfg.Retry.Enabled {
		warnings = append(warnings, "retries are disabled; transient failures are recorded immediately")
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}
	for _, p := range problems {
		ui.PrintError("Error", p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration has %d problems", len(problems))
	}

	ui.PrintSuccess("Configuration is valid")
	return nil
}
