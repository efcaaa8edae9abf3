// Package discovery resolves operator-supplied seeds into resource handles
// and expands handles into their directly related resources.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/imamik/teardown/internal/aws"
	"github.com/imamik/teardown/internal/graph"
	"github.com/imamik/teardown/internal/resource"
	"github.com/imamik/teardown/internal/util/retry"
)

// NotFoundError reports that a seed matched no live resource.
type NotFoundError struct {
	Seed string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no resource found for seed %q", e.Seed)
}

// AmbiguousSeedError reports that a public IP seed matched more than one
// instance. No graph is built in that case.
type AmbiguousSeedError struct {
	Seed    string
	Matches []resource.Key
}

func (e *AmbiguousSeedError) Error() string {
	parts := make([]string, len(e.Matches))
	for i, k := range e.Matches {
		parts[i] = k.String()
	}
	return fmt.Sprintf("seed %q matches multiple resources: %s", e.Seed, strings.Join(parts, ", "))
}

// Directory looks up resources through the provider's describe calls.
// All calls are read-only; throttled describes are retried, missing
// resources are not.
type Directory struct {
	provider aws.Describer
	attempts int
}

// New creates a directory over the provider with the given describe retry
// budget.
func New(provider aws.Describer, retryAttempts int) *Directory {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Directory{provider: provider, attempts: retryAttempts}
}

// Resolve maps a seed to a typed handle. The seed's type is detected from
// its shape: "i-..." is an instance id, "vpc-..." a VPC id, and anything
// that parses as an IPv4 address a public IP.
func (d *Directory) Resolve(ctx context.Context, seed string) (resource.Handle, error) {
	switch {
	case strings.HasPrefix(seed, "i-"):
		return d.resolveInstance(ctx, seed)
	case strings.HasPrefix(seed, "vpc-"):
		return d.resolveVpc(ctx, seed)
	case net.ParseIP(seed) != nil:
		return d.resolvePublicIP(ctx, seed)
	}
	return resource.Handle{}, &NotFoundError{Seed: seed}
}

func (d *Directory) resolveInstance(ctx context.Context, id string) (resource.Handle, error) {
	var h resource.Handle
	err := d.describe(ctx, func(ctx context.Context) error {
		var err error
		h, err = d.provider.LookupInstance(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, aws.ErrNotFound) {
			return resource.Handle{}, &NotFoundError{Seed: id}
		}
		return resource.Handle{}, err
	}
	if !instanceActive(h) {
		return resource.Handle{}, &NotFoundError{Seed: id}
	}
	return h, nil
}

func (d *Directory) resolveVpc(ctx context.Context, id string) (resource.Handle, error) {
	var h resource.Handle
	err := d.describe(ctx, func(ctx context.Context) error {
		var err error
		h, err = d.provider.LookupVpc(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, aws.ErrNotFound) {
			return resource.Handle{}, &NotFoundError{Seed: id}
		}
		return resource.Handle{}, err
	}
	return h, nil
}

func (d *Directory) resolvePublicIP(ctx context.Context, ip string) (resource.Handle, error) {
	var matches []resource.Handle
	err := d.describe(ctx, func(ctx context.Context) error {
		var err error
		matches, err = d.provider.InstancesByPublicIP(ctx, ip)
		return err
	})
	if err != nil {
		return resource.Handle{}, err
	}

	var active []resource.Handle
	for _, h := range matches {
		if instanceActive(h) {
			active = append(active, h)
		}
	}
	switch len(active) {
	case 0:
		return resource.Handle{}, &NotFoundError{Seed: ip}
	case 1:
		return active[0], nil
	}
	keys := make([]resource.Key, len(active))
	for i, h := range active {
		keys[i] = h.Key()
	}
	return resource.Handle{}, &AmbiguousSeedError{Seed: ip, Matches: keys}
}

// Expand returns the resources directly related to h plus the precedence
// edges those relations imply. Edge direction means "from is deleted
// before to".
func (d *Directory) Expand(ctx context.Context, h resource.Handle) ([]resource.Handle, []graph.Edge, error) {
	switch h.Kind {
	case resource.KindInstance:
		return d.expandInstance(ctx, h)
	case resource.KindAutoScalingGroup:
		return d.expandAutoScalingGroup(ctx, h)
	case resource.KindVpc:
		return d.expandVpc(ctx, h)
	case resource.KindCluster:
		return d.expandCluster(ctx, h)
	}
	// Subnets, gateways, endpoints, security groups and profile bindings
	// are leaves.
	return nil, nil, nil
}

// expandInstance discovers the instance's autoscaling group, profile
// binding, security groups and VPC. The group and the profile binding
// must be gone before the instance deletion is final; the instance must
// be gone before its security groups and VPC.
func (d *Directory) expandInstance(ctx context.Context, h resource.Handle) ([]resource.Handle, []graph.Edge, error) {
	var related []resource.Handle
	var edges []graph.Edge

	var asg resource.Handle
	var inASG bool
	err := d.describe(ctx, func(ctx context.Context) error {
		var err error
		asg, inASG, err = d.provider.AutoScalingGroupOf(ctx, h.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if inASG {
		related = append(related, asg)
		edges = append(edges, graph.Edge{From: asg.Key(), To: h.Key()})
	}

	var binding resource.Handle
	var bound bool
	err = d.describe(ctx, func(ctx context.Context) error {
		var err error
		binding, bound, err = d.provider.InstanceProfileBindingOf(ctx, h.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if bound {
		related = append(related, binding)
		edges = append(edges, graph.Edge{From: binding.Key(), To: h.Key()})
	}

	for _, sgID := range splitList(h.Attr(resource.AttrSecurityGroups)) {
		sg := resource.Handle{
			Kind:   resource.KindSecurityGroup,
			ID:     sgID,
			Region: h.Region,
			Attrs:  map[string]string{resource.AttrVpcID: h.Attr(resource.AttrVpcID)},
		}
		related = append(related, sg)
		edges = append(edges, graph.Edge{From: h.Key(), To: sg.Key()})
	}

	if vpcID := h.Attr(resource.AttrVpcID); vpcID != "" {
		vpc, err := d.resolveVpc(ctx, vpcID)
		if err != nil {
			return nil, nil, err
		}
		related = append(related, vpc)
		edges = append(edges, graph.Edge{From: h.Key(), To: vpc.Key()})
	}

	return related, edges, nil
}

// expandAutoScalingGroup discovers the group's member instances.
func (d *Directory) expandAutoScalingGroup(ctx context.Context, h resource.Handle) ([]resource.Handle, []graph.Edge, error) {
	var ids []string
	err := d.describe(ctx, func(ctx context.Context) error {
		var err error
		ids, err = d.provider.AutoScalingGroupMembers(ctx, h.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var related []resource.Handle
	var edges []graph.Edge
	for _, id := range ids {
		in, err := d.resolveInstance(ctx, id)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, nil, err
		}
		related = append(related, in)
		edges = append(edges, graph.Edge{From: h.Key(), To: in.Key()})
	}
	return related, edges, nil
}

// expandVpc discovers everything the VPC contains: subnets, gateways,
// endpoints, non-default security groups, instances and an EKS cluster if
// one is attached. All children precede the VPC itself; compute (instances
// and the cluster) precedes the network fabric.
func (d *Directory) expandVpc(ctx context.Context, h resource.Handle) ([]resource.Handle, []graph.Edge, error) {
	var related []resource.Handle
	var edges []graph.Edge

	var fabric []resource.Handle
	for _, list := range []func(context.Context, string) ([]resource.Handle, error){
		d.provider.SubnetsOf,
		d.provider.InternetGatewaysOf,
		d.provider.VpcEndpointsOf,
		d.provider.SecurityGroupsOf,
	} {
		var batch []resource.Handle
		err := d.describe(ctx, func(ctx context.Context) error {
			var err error
			batch, err = list(ctx, h.ID)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		fabric = append(fabric, batch...)
	}
	for _, f := range fabric {
		related = append(related, f)
		edges = append(edges, graph.Edge{From: f.Key(), To: h.Key()})
	}

	var instances []resource.Handle
	err := d.describe(ctx, func(ctx context.Context) error {
		var err error
		instances, err = d.provider.InstancesInVpc(ctx, h.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	for _, in := range instances {
		if !instanceActive(in) {
			continue
		}
		related = append(related, in)
		edges = append(edges, graph.Edge{From: in.Key(), To: h.Key()})
		for _, f := range fabric {
			if f.Kind == resource.KindSecurityGroup {
				continue
			}
			edges = append(edges, graph.Edge{From: in.Key(), To: f.Key()})
		}
	}

	var cluster resource.Handle
	var hasCluster bool
	err = d.describe(ctx, func(ctx context.Context) error {
		var err error
		cluster, hasCluster, err = d.provider.ClusterOf(ctx, h.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if hasCluster {
		related = append(related, cluster)
		edges = append(edges, graph.Edge{From: cluster.Key(), To: h.Key()})
		for _, f := range fabric {
			edges = append(edges, graph.Edge{From: cluster.Key(), To: f.Key()})
		}
	}

	return related, edges, nil
}

// expandCluster links the cluster to its VPC; the VPC expansion adds the
// edges to the network fabric.
func (d *Directory) expandCluster(ctx context.Context, h resource.Handle) ([]resource.Handle, []graph.Edge, error) {
	vpcID := h.Attr(resource.AttrVpcID)
	if vpcID == "" {
		return nil, nil, nil
	}
	vpc, err := d.resolveVpc(ctx, vpcID)
	if err != nil {
		return nil, nil, err
	}
	return []resource.Handle{vpc}, []graph.Edge{{From: h.Key(), To: vpc.Key()}}, nil
}

// describe retries an individual describe call on throttling only.
func (d *Directory) describe(ctx context.Context, fn func(context.Context) error) error {
	err := retry.Do(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || aws.IsThrottling(err) {
			return err
		}
		return retry.Fatal(err)
	}, retry.WithMaxAttempts(d.attempts))

	// Unwrap the fatal marker so callers see the provider error as-is.
	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}

func instanceActive(h resource.Handle) bool {
	switch h.Attr(resource.AttrState) {
	case "stopped", "terminated":
		return false
	}
	return true
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
