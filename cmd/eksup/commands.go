package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eksup/eksup/internal/config"
	"github.com/eksup/eksup/internal/engine"
	"github.com/eksup/eksup/internal/models"
	"github.com/eksup/eksup/internal/output"
	"github.com/eksup/eksup/internal/playbook"
	awsprovider "github.com/eksup/eksup/internal/providers/aws"
	kube "github.com/eksup/eksup/internal/providers/kubernetes"
	"github.com/eksup/eksup/internal/rulepacks/upgrade"
	"github.com/eksup/eksup/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "eksup",
		Short:        "eksup analyzes EKS clusters for upgrade readiness",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

const (
	exitGenericFailure  = 1
	exitPlaybookFailure = 2
)

// exitError carries the process exit code for a failed command. Errors
// without one exit with exitGenericFailure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return exitGenericFailure
}

// analyzeFlags are the flags shared by analyze and create playbook.
type analyzeFlags struct {
	cluster           string
	region            string
	configPath        string
	ignoreRecommended bool
}

func (f *analyzeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.cluster, "cluster", "", "EKS cluster name (required)")
	cmd.Flags().StringVar(&f.region, "region", "", "AWS region (default: environment / shared config)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "Path to the .eksup.yaml config file (default: ./.eksup.yaml)")
	cmd.Flags().BoolVar(&f.ignoreRecommended, "ignore-recommended", false, "Drop RECOMMENDED findings, keeping only REQUIRED ones")
	_ = cmd.MarkFlagRequired("cluster")
}

func newAnalyzeCmd() *cobra.Command {
	var (
		flags     analyzeFlags
		reportFmt string
		outPath   string
		colored   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a cluster's readiness for an in-place upgrade",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			analyzer, err := buildAnalyzer(cmd.Context(), flags.region, cfg)
			if err != nil {
				return err
			}

			results, err := analyzer.Analyze(cmd.Context(), engine.Options{
				ClusterName:       flags.cluster,
				IgnoreRecommended: flags.ignoreRecommended,
				Config:            cfg,
			})
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			if outPath != "" {
				if err := writeResultsToFile(outPath, results); err != nil {
					return err
				}
			}

			if engine.ReportFormat(reportFmt) == engine.ReportFormatJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			output.RenderResults(cmd.OutOrStdout(), results, output.TableOptions{Colored: colored})
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&reportFmt, "format", "text", "Output format: json or text")
	cmd.Flags().StringVar(&outPath, "output", "", "Write full JSON results to this file path (in addition to stdout output)")
	cmd.Flags().BoolVar(&colored, "color", false, "Colorize remediation labels in the text output")

	return cmd
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create upgrade artifacts",
	}
	cmd.AddCommand(newCreatePlaybookCmd())
	return cmd
}

func newCreatePlaybookCmd() *cobra.Command {
	var (
		flags    analyzeFlags
		filename string
	)

	cmd := &cobra.Command{
		Use:   "playbook",
		Short: "Analyze a cluster and write a markdown upgrade playbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			analyzer, err := buildAnalyzer(cmd.Context(), flags.region, cfg)
			if err != nil {
				return err
			}

			results, inventory, err := analyzer.AnalyzeWithInventory(cmd.Context(), engine.Options{
				ClusterName:       flags.cluster,
				IgnoreRecommended: flags.ignoreRecommended,
				Config:            cfg,
			})
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			path, err := playbook.Write(playbook.Options{
				Results:   results,
				Inventory: inventory,
				Filename:  filename,
			})
			if err != nil {
				return &exitError{code: exitPlaybookFailure, err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&filename, "filename", "", "Playbook output path (default: <cluster>_upgrade.md)")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the eksup version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.Info())
		},
	}
}

// buildAnalyzer wires the production collectors and the check registry.
func buildAnalyzer(ctx context.Context, region string, cfg *config.Config) (engine.Analyzer, error) {
	cloud, err := awsprovider.NewDefaultCollector(ctx, region, cfg.CallTimeout())
	if err != nil {
		return nil, err
	}

	clientset, dynamicClient, _, err := kube.NewDefaultKubeClientProvider().ClientsForContext("")
	if err != nil {
		return nil, err
	}
	cluster := kube.NewCollector(clientset, dynamicClient, cfg.CallTimeout())

	return engine.NewDefaultAnalyzer(cloud, cluster, upgrade.Registry()), nil
}

// printJSON writes the results as indented JSON.
func printJSON(w io.Writer, results *models.Results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// writeResultsToFile serialises results as indented JSON and writes them to
// path, creating or overwriting the file. It does not affect stdout output.
func writeResultsToFile(path string, results *models.Results) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results file %q: %w", path, err)
	}
	return nil
}
