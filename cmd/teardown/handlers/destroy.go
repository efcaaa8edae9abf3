// Package handlers implements command execution for the teardown CLI.
package handlers

import (
	"context"
	"fmt"
	"log"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/imamik/teardown/internal/aws"
	"github.com/imamik/teardown/internal/config"
	"github.com/imamik/teardown/internal/discovery"
	"github.com/imamik/teardown/internal/engine"
	"github.com/imamik/teardown/internal/graph"
	"github.com/imamik/teardown/internal/observe"
	"github.com/imamik/teardown/internal/plan"
	"github.com/imamik/teardown/internal/report"
)

// DestroyOptions carries the destroy command's flag values.
type DestroyOptions struct {
	Region      string
	InstanceID  string
	PublicIP    string
	VpcID       string
	Execute     bool
	Yes         bool
	Parallelism int
	MaxAttempts int
	ConfigPath  string
}

// Seed returns the one seed value that was set.
func (o DestroyOptions) Seed() string {
	for _, s := range []string{o.InstanceID, o.PublicIP, o.VpcID} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Factory function variables - can be replaced in tests.
var (
	loadConfigFile = config.LoadFile

	newProvider = func(ctx context.Context, region string) (aws.Provider, error) {
		sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return aws.New(sdkCfg), nil
	}

	confirmExecute = func(ctx context.Context, resources, phases int) (bool, error) {
		var proceed bool
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %d resources in %d phases?", resources, phases)).
					Description("This is irreversible. All listed resources will be destroyed.").
					Value(&proceed),
			),
		).RunWithContext(ctx)
		if err != nil {
			return false, err
		}
		return proceed, nil
	}

	stdoutIsTerminal = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
)

// Destroy handles the destroy command.
//
// It resolves the seed into a dependency graph, derives the deletion
// plan, reports it, and - in execute mode, after confirmation - runs it.
// Any resolution, graph or planning error aborts before a single
// mutating call is made.
func Destroy(ctx context.Context, opts DestroyOptions) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	provider, err := newProvider(ctx, cfg.Region)
	if err != nil {
		return err
	}

	seed := opts.Seed()
	log.Printf("Discovering resources reachable from %s in %s...", seed, cfg.Region)

	dir := discovery.New(provider, cfg.Retry.MaxAttempts)
	g, err := graph.Build(ctx, dir, seed)
	if err != nil {
		return err
	}

	mode := plan.DryRun
	if opts.Execute {
		mode = plan.Execute
	}
	p, err := plan.Build(g, mode)
	if err != nil {
		return err
	}

	styled := stdoutIsTerminal()
	renderer := report.New(styled)
	fmt.Print(renderer.Plan(p))

	if !opts.Execute {
		return nil
	}

	if !opts.Yes {
		if !styled {
			return fmt.Errorf("refusing to execute without a terminal; pass --yes to confirm non-interactively")
		}
		proceed, err := confirmExecute(ctx, p.Size(), len(p.Phases))
		if err != nil {
			return fmt.Errorf("confirmation failed: %w", err)
		}
		if !proceed {
			log.Print("Aborted; nothing was deleted.")
			return nil
		}
	}

	result := engine.Execute(ctx, p, g, provider, engine.Options{
		Parallelism:  cfg.Parallelism,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Observer:     observe.NewConsole(),
	})
	fmt.Print(renderer.Result(p, result))

	switch result.Run {
	case engine.RunPartiallyFailed:
		return fmt.Errorf("teardown finished with failures")
	case engine.RunCancelled:
		return fmt.Errorf("teardown cancelled")
	}
	return nil
}

// resolveConfig layers defaults, the optional config file and flag
// overrides, then validates the result.
func resolveConfig(opts DestroyOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := loadConfigFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.Region != "" {
		cfg.Region = opts.Region
	}
	if opts.Parallelism > 0 {
		cfg.Parallelism = opts.Parallelism
	}
	if opts.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = opts.MaxAttempts
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
