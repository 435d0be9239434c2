// Package cli implements the pypes CLI: a single `run` command that
// parses a blueprint, statically analyses its capability graph, and —
// unless rejected or run with --verify-only — links and executes it.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pypes-run/pypes/internal/config"
	"github.com/pypes-run/pypes/pkg/analyser"
	"github.com/pypes-run/pypes/pkg/blueprint"
	"github.com/pypes-run/pypes/pkg/component"
	pypeserrors "github.com/pypes-run/pypes/pkg/errors"
	"github.com/pypes-run/pypes/pkg/fetcher"
	"github.com/pypes-run/pypes/pkg/host"
	"github.com/pypes-run/pypes/pkg/linker"
	"github.com/pypes-run/pypes/pkg/registry"
	"github.com/pypes-run/pypes/pkg/resolver"
	"github.com/pypes-run/pypes/pkg/valueproxy"
	"github.com/pypes-run/pypes/pkg/workflow"
)

// Exit codes, per the run command's contract.
const (
	ExitSuccess           = 0
	ExitRuntimeFailure    = 1
	ExitAnalyserRejection = 2
	ExitConfigMalformed   = 3
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "pypes",
	Short: "Run sandboxed WebAssembly component workflows under an enforced capability boundary",
	Long: `pypes composes sandboxed WebAssembly components into agent workflows.

A Blueprint names a set of components, wires each component's required
imports to a provider's exports (the trusted host or another
component), and optionally declares a workflow of function invocations
with templated data flow. Before anything executes, pypes statically
analyses the resulting capability graph and rejects configurations
exhibiting the Lethal Trifecta or Deadly Duo vulnerability patterns.`,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.AddCommand(newRunCmd())
	if err := rootCmd.Execute(); err != nil {
		return ExitConfigMalformed
	}
	return exitCode
}

// exitCode is set by the run command's handler since cobra itself has
// no notion of a non-zero, non-error exit status.
var exitCode int

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Parse, analyse, and execute a blueprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(v)
			exitCode = runBlueprint(cmd, cfg)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to the blueprint file (required)")
	flags.Bool("verify-only", false, "analyse only; never instantiate or execute")
	flags.Bool("allow-unsafe", false, "bypass the Lethal Trifecta and Deadly Duo policy checks")
	flags.String("entrypoint", "", "skip the declared workflow and invoke this component's run export")
	flags.String("cache-dir", "", "registry cache directory (default ~/.pypes/cache)")
	flags.StringSlice("allow-host", nil, "hostnames wasi:http/outgoing-handler may reach")
	flags.StringSlice("allow-env", nil, "environment variable names wasi:cli/environment may read")
	flags.String("filesystem-root", ".", "directory wasi:filesystem/types is rooted at")
	flags.Bool("filesystem-write", false, "permit wasi:filesystem/types writes")
	flags.Int("max-payload-size", 0, "payload ceiling enforced by the value proxy, in bytes (0 = unbounded)")
	flags.Duration("timeout", 0, "wall-clock bound on the workflow run (0 = unbounded)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("PYPES")
	v.AutomaticEnv()

	return cmd
}

// runBlueprint drives the full pipeline and returns the process exit
// code, printing diagnostics to the command's stderr along the way.
func runBlueprint(cmd *cobra.Command, cfg *config.Config) int {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx := context.Background()

	if cfg.BlueprintPath == "" {
		fmt.Fprintln(stderr, "run: --config is required")
		return ExitConfigMalformed
	}

	data, err := os.ReadFile(cfg.BlueprintPath)
	if err != nil {
		fmt.Fprintln(stderr, pypeserrors.MalformedConfig(cfg.BlueprintPath, err))
		return ExitConfigMalformed
	}
	bp, err := blueprint.Parse(cfg.BlueprintPath, data)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitConfigMalformed
	}

	loader, err := newLoader(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitRuntimeFailure
	}
	artifacts, err := loader.LoadBlueprintComponents(ctx, bp.Components)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitRuntimeFailure
	}

	opts := analyser.Options{
		HostExports:            host.AdvertisedExports(),
		FilesystemWriteAllowed: cfg.FilesystemWriteAllowed,
		AllowUnsafe:            cfg.AllowUnsafe,
	}
	accepted, analErr := analyser.Analyse(bp, artifacts, opts)

	if cfg.VerifyOnly {
		return printVerifyResult(stdout, accepted, analErr)
	}
	if analErr != nil {
		fmt.Fprintln(stderr, analErr)
		return ExitAnalyserRejection
	}
	if cfg.AllowUnsafe {
		fmt.Fprintln(stderr, "warning: --allow-unsafe bypassed the Lethal Trifecta and Deadly Duo checks")
	}

	providerCfg := host.Config{
		FilesystemRoot:         cfg.FilesystemRoot,
		FilesystemWriteAllowed: cfg.FilesystemWriteAllowed,
		HTTPAllowlist:          cfg.HTTPAllowlist,
		EnvAllowlist:           cfg.EnvAllowlist,
		MaxPayloadSize:         cfg.MaxPayloadSize,
	}
	logger, _ := zap.NewProduction()
	lk := linker.New(host.NewProvider(providerCfg), cfg.MaxPayloadSize, logger)
	defer lk.Close(ctx)

	set, err := lk.Link(ctx, artifacts, bp.Wiring)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitRuntimeFailure
	}

	if cfg.Entrypoint != "" {
		return runEntrypoint(stdout, stderr, cfg, set)
	}
	return runWorkflow(stdout, stderr, cfg, bp, set)
}

func newLoader(cfg *config.Config) (*component.Loader, error) {
	var reg registry.Registry
	var err error
	if cfg.CacheDir != "" {
		reg, err = registry.New(cfg.CacheDir + "/index.json")
	} else {
		reg, err = registry.NewDefault()
	}
	if err != nil {
		return nil, err
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir, err = registry.DefaultCachePath()
		if err != nil {
			return nil, err
		}
	}

	f := fetcher.New(cacheDir, reg)
	res := resolver.New(cacheDir+"/git", f)
	return component.NewLoader(res), nil
}

// verifyResult is the machine-readable record a --verify-only run
// emits, on stdout, whether the blueprint was accepted or rejected.
type verifyResult struct {
	Accepted bool                `json:"accepted"`
	Order    []string            `json:"instantiation_order,omitempty"`
	Labels   map[string][]string `json:"capability_labels,omitempty"`
	Error    *pypesError         `json:"rejection,omitempty"`
}

type pypesError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func printVerifyResult(stdout io.Writer, accepted *analyser.Accepted, analErr error) int {
	result := verifyResult{Accepted: analErr == nil}
	if analErr != nil {
		if e, ok := analErr.(*pypeserrors.Error); ok {
			result.Error = &pypesError{Code: string(e.Code), Message: e.Message, Details: e.Details}
		}
	} else {
		result.Order = accepted.Order
		result.Labels = accepted.Labels
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)

	if analErr != nil {
		return ExitAnalyserRejection
	}
	return ExitSuccess
}

func runEntrypoint(stdout, stderr io.Writer, cfg *config.Config, set *linker.Set) int {
	instance, ok := set.Instances[cfg.Entrypoint]
	if !ok {
		fmt.Fprintln(stderr, pypeserrors.UnknownReference("component", cfg.Entrypoint))
		return ExitRuntimeFailure
	}

	var runIface component.Interface
	found := false
	for _, export := range instance.World.Exports {
		if fn, ok := export.Function("run"); ok {
			_ = fn
			runIface, found = export, true
			break
		}
	}
	if !found {
		fmt.Fprintln(stderr, pypeserrors.UnsatisfiedExport(cfg.Entrypoint, "run"))
		return ExitRuntimeFailure
	}

	proxy := valueproxy.New(cfg.MaxPayloadSize)
	results, err := proxy.Call(runIface, "run", nil, instance)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitRuntimeFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)
	return ExitSuccess
}

// runWorkflow executes the blueprint's declared workflow steps in
// order and renders their outcome through a progress table. The
// executor only reports per-step results once the whole run has
// finished, so the table is populated as pending up front and then
// resolved against the returned record rather than updated live.
func runWorkflow(stdout, stderr io.Writer, cfg *config.Config, bp *blueprint.Blueprint, set *linker.Set) int {
	targets := make(map[string]workflow.Target, len(set.Instances))
	for name, instance := range set.Instances {
		targets[name] = workflow.NewTarget(instance, instance.World)
	}

	proxy := valueproxy.New(cfg.MaxPayloadSize)
	ex := workflow.New(proxy, targets)

	table := NewProgressTable(stdout)
	for _, step := range bp.Workflow {
		table.AddStep(step.ID, step.Component, step.Function)
	}
	table.PrintInitial()

	record, err := ex.Run(context.Background(), bp.Workflow, cfg.Timeout)
	for _, step := range record.Steps {
		status := StepCompleted
		switch {
		case step.Skipped:
			status = StepSkipped
		case step.Err != nil:
			status = StepFailed
		}
		table.UpdateStatus(step.StepID, status, step.Err)
	}
	table.PrintFinalSummary(record.Aborted)

	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitRuntimeFailure
	}
	return ExitSuccess
}
