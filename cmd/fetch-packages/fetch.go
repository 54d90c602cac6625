package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-edge-platform/tpfetch/internal/config"
	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/pipeline"
	"github.com/open-edge-platform/tpfetch/internal/report"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/open-edge-platform/tpfetch/internal/utils/shell"
	"github.com/open-edge-platform/tpfetch/internal/utils/system"
	"github.com/spf13/cobra"
)

// executeFetch runs every manifest package through the pipeline.
func executeFetch(cmd *cobra.Command, _ []string) error {
	log := logger.Logger()

	cfg, err := config.Load(config.LoadOptions{ConfigFilePath: configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	if err := system.CheckRequiredTools(system.RequiredTools(cfg.HostOS)); err != nil {
		return err
	}
	if err := cfg.CreateCacheDir(); err != nil {
		return err
	}

	pkgs, err := manifest.Load(cfg.ManifestFile)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d packages from %s, caching in %s", len(pkgs), cfg.ManifestFile, cfg.CacheDir)
	if cfg.DryRun {
		log.Infof("Dry run: no files will be downloaded, extracted or modified")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := pipeline.NewDefault(cfg, shell.Default, nil).Run(ctx, pkgs)
	fmt.Fprint(cmd.OutOrStdout(), report.Summary(results, len(pkgs), cfg.WorkDir))

	if cfg.ReportPath != "" {
		path, err := report.FetchedFiles(results).AppendTo(cfg.Path(cfg.ReportPath))
		if err != nil {
			log.Warnf("Failed to write fetched files report: %v", err)
		} else {
			log.Debugf("Fetched files appended to %s", path)
		}
	}
	return runErr
}
