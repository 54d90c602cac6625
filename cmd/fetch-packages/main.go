// Command fetch-packages downloads, unpacks and prepares the third-party
// packages listed in a manifest.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/reconfigure"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
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
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run error to the process exit status. A failed autoreconf
// propagates its own status; everything else exits 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var reconfErr *reconfigure.Error
	if errors.As(err, &reconfErr) {
		return shell.ExitCode(reconfErr)
	}
	return 1
}

func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fetch-packages",
		Short: "Fetch and prepare third-party packages",
		Long: `fetch-packages reads a package manifest and, for every package that
applies to this host, downloads the artifact into the cache, verifies its
MD5 checksum, unpacks it into the working tree, applies patches and
regenerates autotools build scripts when requested.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          executeFetch,
	}

	flags := rootCmd.Flags()
	flags.String(config.KeyFile, config.DefaultManifestFile(runtime.GOOS), "package manifest (.xml, .yaml or .toml)")
	flags.String(config.KeyCacheDir, "", "directory downloads are cached in (default: a new temporary directory)")
	flags.String(config.KeyNodeModuleDir, config.DefaultNodeModulesDir, "directory npm modules are copied into")
	flags.String(config.KeyNodeModuleTmpDir, "", "npm install prefix (default: <cache-dir>/node_modules)")
	flags.String(config.KeyWorkDir, ".", "directory packages are unpacked in")
	flags.String(config.KeySiteMirror, "", "URL substituted for the site mirror placeholder")
	flags.Bool(config.KeyDryRun, false, "log planned actions without changing anything")
	flags.Int(config.KeyRetries, config.DefaultRetries, "extra download rounds after the first")
	flags.Duration(config.KeyBackoff, config.DefaultBackoffUnit, "wait unit between download rounds, multiplied by the round number")
	flags.Duration(config.KeyHTTPTimeout, 0, "timeout for a single transfer (0 means none)")
	flags.String(config.KeyReport, "", "append the list of fetched files to this file or directory")

	persistent := rootCmd.PersistentFlags()
	persistent.StringVar(&configFile, "config", "", "configuration file")
	persistent.StringVar(&logLevel, config.KeyLogLevel, "", "log level (debug, info, warn, error)")
	persistent.BoolP(config.KeyVerbose, "v", false, "show download progress and debug logs")

	rootCmd.AddCommand(createValidateCommand())
	rootCmd.AddCommand(createConvertCommand())

	attachLoggingHooks(rootCmd)
	return rootCmd
}

func attachLoggingHooks(cmd *cobra.Command) {
	cmd.PersistentPreRunE = setupLogging
	for _, sub := range cmd.Commands() {
		attachLoggingHooks(sub)
	}
}

// resolveRequestedLogLevel returns the explicit --log-level, else "debug"
// when --verbose was given.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if verbose, err := cmd.Flags().GetBool(config.KeyVerbose); err == nil && verbose {
		return "debug"
	}
	return ""
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	if err := logger.Init(resolveRequestedLogLevel(cmd)); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logger.SetLogger(logger.Logger().With("run", uuid.NewString()))
	return nil
}
