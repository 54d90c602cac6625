// Command populate-cache downloads the canonical artifact of every manifest
// package into a directory laid out for serving as a site mirror.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/fetcher"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/mirror"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

func main() {
	rootCmd := createRootCommand()
	err := rootCmd.ExecuteContext(context.Background())
	logger.Sync()
	if err != nil {
		logger.Logger().Errorf("%v", err)
		os.Exit(1)
	}
}

func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "populate-cache DEST",
		Short: "Populate a site mirror with canonical package artifacts",
		Long: `populate-cache downloads each package's canonical URL into
DEST/<first letter>/<filename>. Artifacts already present with a matching
MD5 checksum are kept. Every package is attempted once and the command
fails if any of them could not be cached.`,
		Args:              cobra.ExactArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
		RunE:              executePopulate,
	}

	flags := rootCmd.Flags()
	flags.String(config.KeyFile, config.DefaultManifestFile(runtime.GOOS), "package manifest (.xml, .yaml or .toml)")
	flags.String(config.KeySiteMirror, "", "URL substituted for the site mirror placeholder")
	flags.Duration(config.KeyHTTPTimeout, 0, "timeout for a single transfer (0 means none)")
	flags.StringVar(&configFile, "config", "", "configuration file")
	flags.StringVar(&logLevel, config.KeyLogLevel, "", "log level (debug, info, warn, error)")
	flags.BoolP(config.KeyVerbose, "v", false, "show download progress and debug logs")

	// The destination doubles as the cache directory.
	flags.String(config.KeyCacheDir, "", "")
	_ = flags.MarkHidden(config.KeyCacheDir)
	return rootCmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	level := logLevel
	if verbose, err := cmd.Flags().GetBool(config.KeyVerbose); err == nil && verbose && level == "" {
		level = "debug"
	}
	if err := logger.Init(level); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger.SetLogger(logger.Logger().With("run", uuid.NewString()))
	return nil
}

func executePopulate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	if err := cmd.Flags().Set(config.KeyCacheDir, args[0]); err != nil {
		return err
	}
	cfg, err := config.Load(config.LoadOptions{ConfigFilePath: configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	if err := cfg.CreateCacheDir(); err != nil {
		return err
	}

	pkgs, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := mirror.New(cfg, cfg.CacheDir, fetcher.NewHTTPTransport(cfg)).Populate(ctx, pkgs)

	counts := map[mirror.Outcome]int{}
	for _, res := range results {
		counts[res.Outcome]++
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d cached, %d downloaded, %d failed\n",
		cfg.CacheDir, counts[mirror.Cached], counts[mirror.Downloaded], counts[mirror.Failed])
	if err != nil {
		return err
	}
	log.Infof("Mirror in %s is complete", cfg.CacheDir)
	return nil
}
