// Package aws implements the provider capability over the AWS APIs: the
// read-only describe calls used during discovery and the delete/detach
// calls used during execution, plus a recording simulator.
package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/smithy-go"

	"github.com/imamik/teardown/internal/resource"
)

// Client is the live provider adapter.
type Client struct {
	ec2         EC2API
	autoscaling AutoScalingAPI
	eks         EKSAPI
	iam         IAMAPI
	region      string
	waitTimeout time.Duration
}

// New creates a live client from a resolved SDK configuration.
func New(cfg awsv2.Config) *Client {
	return &Client{
		ec2:         ec2.NewFromConfig(cfg),
		autoscaling: autoscaling.NewFromConfig(cfg),
		eks:         eks.NewFromConfig(cfg),
		iam:         iam.NewFromConfig(cfg),
		region:      cfg.Region,
		waitTimeout: 10 * time.Minute,
	}
}

// NewWithClients creates a client with caller-supplied service clients.
func NewWithClients(ec2c EC2API, asg AutoScalingAPI, eksc EKSAPI, iamc IAMAPI, region string) *Client {
	return &Client{
		ec2:         ec2c,
		autoscaling: asg,
		eks:         eksc,
		iam:         iamc,
		region:      region,
		waitTimeout: 10 * time.Minute,
	}
}

// --- Describer ---

// LookupInstance fetches a single instance by id.
func (c *Client) LookupInstance(ctx context.Context, id string) (resource.Handle, error) {
	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		if IsNotFound(err) {
			return resource.Handle{}, fmt.Errorf("instance %s: %w", id, ErrNotFound)
		}
		return resource.Handle{}, fmt.Errorf("describe instance %s: %w", id, err)
	}
	for _, r := range out.Reservations {
		for _, in := range r.Instances {
			return c.instanceHandle(in), nil
		}
	}
	return resource.Handle{}, fmt.Errorf("instance %s: %w", id, ErrNotFound)
}

// InstancesByPublicIP returns every instance whose public IPv4 matches.
func (c *Client) InstancesByPublicIP(ctx context.Context, ip string) ([]resource.Handle, error) {
	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("ip-address"), Values: []string{ip}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instances by ip %s: %w", ip, err)
	}
	return c.collectInstances(out), nil
}

// LookupVpc fetches a single VPC by id.
func (c *Client) LookupVpc(ctx context.Context, id string) (resource.Handle, error) {
	out, err := c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		VpcIds: []string{id},
	})
	if err != nil {
		if IsNotFound(err) {
			return resource.Handle{}, fmt.Errorf("vpc %s: %w", id, ErrNotFound)
		}
		return resource.Handle{}, fmt.Errorf("describe vpc %s: %w", id, err)
	}
	if len(out.Vpcs) == 0 {
		return resource.Handle{}, fmt.Errorf("vpc %s: %w", id, ErrNotFound)
	}
	vpc := out.Vpcs[0]
	attrs := map[string]string{}
	if vpc.CidrBlock != nil {
		attrs[resource.AttrCidrBlock] = *vpc.CidrBlock
	}
	return resource.Handle{
		Kind:   resource.KindVpc,
		ID:     awsv2.ToString(vpc.VpcId),
		Region: c.region,
		Attrs:  attrs,
	}, nil
}

// InstancesInVpc returns all instances placed in the VPC.
func (c *Client) InstancesInVpc(ctx context.Context, vpcID string) ([]resource.Handle, error) {
	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instances in %s: %w", vpcID, err)
	}
	return c.collectInstances(out), nil
}

// SubnetsOf returns the subnets of the VPC.
func (c *Client) SubnetsOf(ctx context.Context, vpcID string) ([]resource.Handle, error) {
	out, err := c.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe subnets of %s: %w", vpcID, err)
	}
	handles := make([]resource.Handle, 0, len(out.Subnets))
	for _, s := range out.Subnets {
		attrs := map[string]string{resource.AttrVpcID: vpcID}
		if s.CidrBlock != nil {
			attrs[resource.AttrCidrBlock] = *s.CidrBlock
		}
		handles = append(handles, resource.Handle{
			Kind:   resource.KindSubnet,
			ID:     awsv2.ToString(s.SubnetId),
			Region: c.region,
			Attrs:  attrs,
		})
	}
	return handles, nil
}

// InternetGatewaysOf returns the internet gateways attached to the VPC.
func (c *Client) InternetGatewaysOf(ctx context.Context, vpcID string) ([]resource.Handle, error) {
	out, err := c.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("attachment.vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe internet gateways of %s: %w", vpcID, err)
	}
	handles := make([]resource.Handle, 0, len(out.InternetGateways))
	for _, igw := range out.InternetGateways {
		handles = append(handles, resource.Handle{
			Kind:   resource.KindInternetGateway,
			ID:     awsv2.ToString(igw.InternetGatewayId),
			Region: c.region,
			Attrs:  map[string]string{resource.AttrVpcID: vpcID},
		})
	}
	return handles, nil
}

// VpcEndpointsOf returns the endpoints created in the VPC.
func (c *Client) VpcEndpointsOf(ctx context.Context, vpcID string) ([]resource.Handle, error) {
	out, err := c.ec2.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe vpc endpoints of %s: %w", vpcID, err)
	}
	handles := make([]resource.Handle, 0, len(out.VpcEndpoints))
	for _, ep := range out.VpcEndpoints {
		handles = append(handles, resource.Handle{
			Kind:   resource.KindVpcEndpoint,
			ID:     awsv2.ToString(ep.VpcEndpointId),
			Region: c.region,
			Attrs:  map[string]string{resource.AttrVpcID: vpcID},
		})
	}
	return handles, nil
}

// SecurityGroupsOf returns the non-default security groups of the VPC.
// The default group cannot be deleted; removing the VPC removes it.
func (c *Client) SecurityGroupsOf(ctx context.Context, vpcID string) ([]resource.Handle, error) {
	out, err := c.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe security groups of %s: %w", vpcID, err)
	}
	handles := make([]resource.Handle, 0, len(out.SecurityGroups))
	for _, sg := range out.SecurityGroups {
		name := awsv2.ToString(sg.GroupName)
		if name == "default" {
			continue
		}
		handles = append(handles, resource.Handle{
			Kind:   resource.KindSecurityGroup,
			ID:     awsv2.ToString(sg.GroupId),
			Region: c.region,
			Attrs: map[string]string{
				resource.AttrVpcID:     vpcID,
				resource.AttrGroupName: name,
			},
		})
	}
	return handles, nil
}

// AutoScalingGroupOf returns the group the instance belongs to, if any.
func (c *Client) AutoScalingGroupOf(ctx context.Context, instanceID string) (resource.Handle, bool, error) {
	out, err := c.autoscaling.DescribeAutoScalingInstances(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return resource.Handle{}, false, fmt.Errorf("describe autoscaling instance %s: %w", instanceID, err)
	}
	if len(out.AutoScalingInstances) == 0 {
		return resource.Handle{}, false, nil
	}
	name := awsv2.ToString(out.AutoScalingInstances[0].AutoScalingGroupName)
	if name == "" {
		return resource.Handle{}, false, nil
	}
	return resource.Handle{
		Kind:   resource.KindAutoScalingGroup,
		ID:     name,
		Region: c.region,
		Attrs:  map[string]string{},
	}, true, nil
}

// AutoScalingGroupMembers returns the ids of the group's instances.
func (c *Client) AutoScalingGroupMembers(ctx context.Context, name string) ([]string, error) {
	out, err := c.autoscaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{name},
	})
	if err != nil {
		return nil, fmt.Errorf("describe autoscaling group %s: %w", name, err)
	}
	var ids []string
	for _, g := range out.AutoScalingGroups {
		for _, in := range g.Instances {
			ids = append(ids, awsv2.ToString(in.InstanceId))
		}
	}
	return ids, nil
}

// ClusterOf returns the EKS cluster whose VPC configuration references the
// VPC, if one exists. Cluster listings are paginated.
func (c *Client) ClusterOf(ctx context.Context, vpcID string) (resource.Handle, bool, error) {
	var nextToken *string
	for {
		list, err := c.eks.ListClusters(ctx, &eks.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return resource.Handle{}, false, fmt.Errorf("list clusters: %w", err)
		}
		for _, name := range list.Clusters {
			desc, err := c.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: awsv2.String(name)})
			if err != nil {
				if IsNotFound(err) {
					continue
				}
				return resource.Handle{}, false, fmt.Errorf("describe cluster %s: %w", name, err)
			}
			cl := desc.Cluster
			if cl == nil || cl.ResourcesVpcConfig == nil {
				continue
			}
			if awsv2.ToString(cl.ResourcesVpcConfig.VpcId) != vpcID {
				continue
			}
			return resource.Handle{
				Kind:   resource.KindCluster,
				ID:     name,
				Region: c.region,
				Attrs: map[string]string{
					resource.AttrVpcID:         vpcID,
					resource.AttrClusterStatus: string(cl.Status),
				},
			}, true, nil
		}
		if list.NextToken == nil {
			return resource.Handle{}, false, nil
		}
		nextToken = list.NextToken
	}
}

// InstanceProfileBindingOf returns the instance-profile association of the
// instance, if one exists. The handle identifies the binding, not the IAM
// profile itself: execution detaches it, nothing in IAM is deleted.
func (c *Client) InstanceProfileBindingOf(ctx context.Context, instanceID string) (resource.Handle, bool, error) {
	out, err := c.ec2.DescribeIamInstanceProfileAssociations(ctx, &ec2.DescribeIamInstanceProfileAssociationsInput{
		Filters: []ec2types.Filter{
			{Name: awsv2.String("instance-id"), Values: []string{instanceID}},
		},
	})
	if err != nil {
		return resource.Handle{}, false, fmt.Errorf("describe profile associations of %s: %w", instanceID, err)
	}
	for _, assoc := range out.IamInstanceProfileAssociations {
		if assoc.IamInstanceProfile == nil || assoc.IamInstanceProfile.Arn == nil {
			continue
		}
		arn := *assoc.IamInstanceProfile.Arn
		name := profileNameFromArn(arn)

		// Confirm the profile still exists; tolerate a dangling association.
		if _, err := c.iam.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
			InstanceProfileName: awsv2.String(name),
		}); err != nil && !IsNotFound(err) {
			return resource.Handle{}, false, fmt.Errorf("get instance profile %s: %w", name, err)
		}

		return resource.Handle{
			Kind:   resource.KindInstanceProfile,
			ID:     name,
			Region: c.region,
			Attrs: map[string]string{
				resource.AttrProfileArn:    arn,
				resource.AttrAssociationID: awsv2.ToString(assoc.AssociationId),
				resource.AttrInstanceID:    instanceID,
			},
		}, true, nil
	}
	return resource.Handle{}, false, nil
}

// --- Mutator ---

// Delete removes the resource and blocks until the provider reports a
// terminal state where one matters (instance termination, EKS nodegroups).
// An already-absent resource yields ErrNotFound.
func (c *Client) Delete(ctx context.Context, h resource.Handle) error {
	switch h.Kind {
	case resource.KindInstance:
		return c.terminateInstance(ctx, h.ID)
	case resource.KindAutoScalingGroup:
		_, err := c.autoscaling.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
			AutoScalingGroupName: awsv2.String(h.ID),
			ForceDelete:          awsv2.Bool(true),
		})
		return c.wrapDelete("autoscaling group", h.ID, err)
	case resource.KindCluster:
		return c.deleteCluster(ctx, h.ID)
	case resource.KindVpc:
		_, err := c.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: awsv2.String(h.ID)})
		return c.wrapDelete("vpc", h.ID, err)
	case resource.KindSubnet:
		_, err := c.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: awsv2.String(h.ID)})
		return c.wrapDelete("subnet", h.ID, err)
	case resource.KindInternetGateway:
		return c.deleteInternetGateway(ctx, h)
	case resource.KindVpcEndpoint:
		return c.deleteVpcEndpoint(ctx, h.ID)
	case resource.KindSecurityGroup:
		_, err := c.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: awsv2.String(h.ID)})
		return c.wrapDelete("security group", h.ID, err)
	case resource.KindInstanceProfile:
		return c.Detach(ctx, h)
	}
	return fmt.Errorf("delete: unsupported resource kind %q", h.Kind)
}

// Detach removes a binding without deleting the bound resource. Supported
// for instance-profile associations and internet gateways.
func (c *Client) Detach(ctx context.Context, h resource.Handle) error {
	switch h.Kind {
	case resource.KindInstanceProfile:
		assocID := h.Attr(resource.AttrAssociationID)
		if assocID == "" {
			return fmt.Errorf("instance profile %s: no association id recorded", h.ID)
		}
		_, err := c.ec2.DisassociateIamInstanceProfile(ctx, &ec2.DisassociateIamInstanceProfileInput{
			AssociationId: awsv2.String(assocID),
		})
		return c.wrapDelete("instance profile association", assocID, err)
	case resource.KindInternetGateway:
		vpcID := h.Attr(resource.AttrVpcID)
		if vpcID == "" {
			return fmt.Errorf("internet gateway %s: no vpc recorded", h.ID)
		}
		_, err := c.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: awsv2.String(h.ID),
			VpcId:             awsv2.String(vpcID),
		})
		return c.wrapDelete("internet gateway attachment", h.ID, err)
	}
	return fmt.Errorf("detach: unsupported resource kind %q", h.Kind)
}

func (c *Client) terminateInstance(ctx context.Context, id string) error {
	_, err := c.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return c.wrapDelete("instance", id, err)
	}
	waiter := ec2.NewInstanceTerminatedWaiter(c.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, c.waitTimeout); err != nil {
		return fmt.Errorf("waiting for instance %s termination: %w", id, err)
	}
	return nil
}

// deleteCluster removes the cluster's nodegroups first, waits for each to
// disappear, then deletes the cluster itself.
func (c *Client) deleteCluster(ctx context.Context, name string) error {
	groups, err := c.eks.ListNodegroups(ctx, &eks.ListNodegroupsInput{ClusterName: awsv2.String(name)})
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("cluster %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("list nodegroups of %s: %w", name, err)
	}
	for _, ng := range groups.Nodegroups {
		_, err := c.eks.DeleteNodegroup(ctx, &eks.DeleteNodegroupInput{
			ClusterName:   awsv2.String(name),
			NodegroupName: awsv2.String(ng),
		})
		if err != nil && !IsNotFound(err) {
			return fmt.Errorf("delete nodegroup %s/%s: %w", name, ng, err)
		}
	}
	waiter := eks.NewNodegroupDeletedWaiter(c.eks)
	for _, ng := range groups.Nodegroups {
		err := waiter.Wait(ctx, &eks.DescribeNodegroupInput{
			ClusterName:   awsv2.String(name),
			NodegroupName: awsv2.String(ng),
		}, c.waitTimeout)
		if err != nil && !IsNotFound(err) {
			return fmt.Errorf("waiting for nodegroup %s/%s deletion: %w", name, ng, err)
		}
	}
	_, err = c.eks.DeleteCluster(ctx, &eks.DeleteClusterInput{Name: awsv2.String(name)})
	return c.wrapDelete("cluster", name, err)
}

// deleteVpcEndpoint issues the batch delete for a single endpoint. The
// call itself can succeed while the endpoint's deletion fails; per-item
// failures come back in the Unsuccessful list with a nil error.
func (c *Client) deleteVpcEndpoint(ctx context.Context, id string) error {
	out, err := c.ec2.DeleteVpcEndpoints(ctx, &ec2.DeleteVpcEndpointsInput{
		VpcEndpointIds: []string{id},
	})
	if err != nil {
		return c.wrapDelete("vpc endpoint", id, err)
	}
	for _, item := range out.Unsuccessful {
		if awsv2.ToString(item.ResourceId) != id || item.Error == nil {
			continue
		}
		return c.wrapDelete("vpc endpoint", id, &smithy.GenericAPIError{
			Code:    awsv2.ToString(item.Error.Code),
			Message: awsv2.ToString(item.Error.Message),
		})
	}
	return nil
}

// deleteInternetGateway detaches the gateway from its VPC before deleting
// it; AWS refuses to delete an attached gateway.
func (c *Client) deleteInternetGateway(ctx context.Context, h resource.Handle) error {
	if err := c.Detach(ctx, h); err != nil && !IsNotFound(err) {
		return err
	}
	_, err := c.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
		InternetGatewayId: awsv2.String(h.ID),
	})
	return c.wrapDelete("internet gateway", h.ID, err)
}

func (c *Client) wrapDelete(what, id string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("delete %s %s: %w", what, id, err)
}

func (c *Client) collectInstances(out *ec2.DescribeInstancesOutput) []resource.Handle {
	var handles []resource.Handle
	for _, r := range out.Reservations {
		for _, in := range r.Instances {
			handles = append(handles, c.instanceHandle(in))
		}
	}
	return handles
}

func (c *Client) instanceHandle(in ec2types.Instance) resource.Handle {
	attrs := map[string]string{}
	if in.State != nil {
		attrs[resource.AttrState] = string(in.State.Name)
	}
	if in.PublicIpAddress != nil {
		attrs[resource.AttrPublicIP] = *in.PublicIpAddress
	}
	if in.VpcId != nil {
		attrs[resource.AttrVpcID] = *in.VpcId
	}
	if in.SubnetId != nil {
		attrs[resource.AttrSubnetID] = *in.SubnetId
	}
	if in.LaunchTime != nil {
		attrs[resource.AttrLaunchTime] = in.LaunchTime.UTC().Format(time.RFC3339)
	}
	if in.IamInstanceProfile != nil && in.IamInstanceProfile.Arn != nil {
		attrs[resource.AttrProfileArn] = *in.IamInstanceProfile.Arn
	}
	if len(in.SecurityGroups) > 0 {
		ids := make([]string, 0, len(in.SecurityGroups))
		for _, sg := range in.SecurityGroups {
			// The default group cannot be deleted; removing the VPC
			// removes it, so it never becomes a deletion target.
			if awsv2.ToString(sg.GroupName) == "default" {
				continue
			}
			ids = append(ids, awsv2.ToString(sg.GroupId))
		}
		if len(ids) > 0 {
			attrs[resource.AttrSecurityGroups] = strings.Join(ids, ",")
		}
	}
	return resource.Handle{
		Kind:   resource.KindInstance,
		ID:     awsv2.ToString(in.InstanceId),
		Region: c.region,
		Attrs:  attrs,
	}
}

func profileNameFromArn(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
