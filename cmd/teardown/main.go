// Package main is the entry point for the teardown CLI.
//
// teardown discovers the dependency closure of an AWS compute resource
// (the instance, its autoscaling group, EKS cluster, VPC, subnets,
// gateways, endpoints, security groups and IAM instance-profile binding)
// and deletes it in dependency order. Runs are dry by default.
//
// For detailed usage information, run:
//
//	teardown --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/teardown/cmd/teardown/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
