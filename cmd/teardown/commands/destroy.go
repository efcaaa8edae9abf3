package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imamik/teardown/cmd/teardown/handlers"
)

// Destroy returns the destroy command.
//
// The destroy command resolves a seed (instance id, public IP or VPC id)
// into its full dependency closure and deletes the closure in dependency
// order. Without --execute the command only reports the plan.
func Destroy() *cobra.Command {
	var opts handlers.DestroyOptions

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Discover and delete a resource and its whole dependency closure",
		Long: `Destroy discovers every resource reachable from the seed and deletes
the closure in dependency order:

  - EKS cluster (nodegroups first)
  - Auto Scaling group
  - IAM instance-profile binding (detached, the profile itself is kept)
  - EC2 instances
  - Subnets, internet gateways, VPC endpoints, security groups
  - The VPC itself

The order is derived from the actual dependency graph, so partial
closures (no cluster, no autoscaling group) work without special cases.

By default the command performs a dry run: it prints the exact deletion
plan and touches nothing. Pass --execute to apply it.

Example:
  teardown destroy --region eu-central-1 --instance-id i-0abc123 --execute

WARNING: an executed teardown is irreversible.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seeds := 0
			for _, s := range []string{opts.InstanceID, opts.PublicIP, opts.VpcID} {
				if s != "" {
					seeds++
				}
			}
			if seeds != 1 {
				return fmt.Errorf("exactly one of --instance-id, --public-ip or --vpc-id must be set")
			}
			return handlers.Destroy(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Region, "region", "", "AWS region (required)")
	cmd.Flags().StringVar(&opts.InstanceID, "instance-id", "", "Seed instance id (i-...)")
	cmd.Flags().StringVar(&opts.PublicIP, "public-ip", "", "Seed public IPv4 address")
	cmd.Flags().StringVar(&opts.VpcID, "vpc-id", "", "Seed VPC id (vpc-...)")
	cmd.Flags().BoolVar(&opts.Execute, "execute", false, "Actually delete resources instead of reporting the plan")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "Skip the interactive confirmation before an executed run")
	cmd.Flags().IntVar(&opts.Parallelism, "parallelism", 0, "Concurrent deletions within a phase (default 4)")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "Attempt budget per resource (default 3)")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to an optional YAML config file")
	_ = cmd.MarkFlagRequired("region")

	return cmd
}
