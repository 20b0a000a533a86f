// Package initcmder provides the init command for initializing a local
// .parley directory in the current working directory.
package initcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/dotdir"
)

const fetchTimeout = 15 * time.Second

const initLongDesc string = `Initialize a new .parley/ directory in the current working directory.

Creates a local .parley/ directory that takes precedence over ~/.parley/ for
the record store, configuration and credentials, and writes a config.toml.

--preset picks the completion provider the config points at
(openrouter, openai, anthropic, ollama), or fetches a config.toml from an
http(s) URL. Re-running init with a preset overwrites config.toml.

Examples:
  parley init
  parley init --preset anthropic
  parley init --preset https://example.com/team/config.toml`

const initShortDesc string = "Initialize a local .parley/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runInit(ctx, cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		"Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	// Resolve the config before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	switch {
	case preset == "":
		cfg = config.NewDefaultConfig()
	case strings.HasPrefix(preset, "http://"), strings.HasPrefix(preset, "https://"):
		cfg, err = fetchConfig(ctx, preset)
	default:
		cfg, err = config.PresetConfig(preset)
	}
	if err != nil {
		return err
	}

	dir := filepath.Join(cwd, dotdir.DirName)
	existed := false
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		existed = true
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", dotdir.DirName, err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(cfger.GetTarget())
	if existed && preset == "" && statErr == nil {
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
		return nil
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Initialized %s directory: %s\n", cliui.SuccessMark, dotdir.DirName, dir)
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(cfger.GetTarget()))
	return nil
}

func fetchConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading remote config: %w", err)
	}
	return config.ParseConfigTOML(data)
}
