package main

import (
	"fmt"
	"sort"

	"github.com/open-edge-platform/tpfetch/internal/manifest"
	"github.com/open-edge-platform/tpfetch/internal/utils/logger"
	"github.com/spf13/cobra"
)

func createValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a package manifest",
		Long: `Validate loads a manifest, checks it against the manifest schema and
prints the number of packages per format.`,
		Args: cobra.ExactArgs(1),
		RunE: executeValidate,
	}
}

func createConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert FILE",
		Short: "Print a package manifest as YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  executeConvert,
	}
}

func executeValidate(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	pkgs, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	counts := map[manifest.Format]int{}
	patches, reconf := 0, 0
	for _, pkg := range pkgs {
		counts[pkg.Format]++
		patches += len(pkg.Patches)
		if pkg.Autoreconf {
			reconf++
		}
		if !pkg.Format.Known() {
			log.Warnf("Package %s has unsupported format %q and will be abandoned", pkg.Name, pkg.Format)
		}
	}

	formats := make([]string, 0, len(counts))
	for f := range counts {
		formats = append(formats, string(f))
	}
	sort.Strings(formats)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d packages, %d patches, %d with autoreconf\n", args[0], len(pkgs), patches, reconf)
	for _, f := range formats {
		fmt.Fprintf(out, "  %-6s %d\n", f, counts[manifest.Format(f)])
	}
	return nil
}

func executeConvert(cmd *cobra.Command, args []string) error {
	pkgs, err := manifest.Load(args[0])
	if err != nil {
		return err
	}
	data, err := manifest.ToYAML(pkgs)
	if err != nil {
		return fmt.Errorf("converting %s: %w", args[0], err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
