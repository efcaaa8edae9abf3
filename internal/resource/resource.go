// Package resource defines the typed handles that identify AWS resources
// throughout discovery, planning and execution.
package resource

import "fmt"

// Kind identifies the type of an AWS resource in the teardown closure.
type Kind string

const (
	KindInstance         Kind = "instance"
	KindAutoScalingGroup Kind = "autoscaling-group"
	KindCluster          Kind = "eks-cluster"
	KindVpc              Kind = "vpc"
	KindSubnet           Kind = "subnet"
	KindInternetGateway  Kind = "internet-gateway"
	KindVpcEndpoint      Kind = "vpc-endpoint"
	KindSecurityGroup    Kind = "security-group"
	KindInstanceProfile  Kind = "instance-profile"
)

// kindRanks orders kinds for display inside a deletion phase. The order has
// no effect on correctness; it only keeps plan output stable between runs.
var kindRanks = map[Kind]int{
	KindCluster:          0,
	KindAutoScalingGroup: 1,
	KindInstanceProfile:  2,
	KindInstance:         3,
	KindSubnet:           4,
	KindInternetGateway:  5,
	KindVpcEndpoint:      6,
	KindSecurityGroup:    7,
	KindVpc:              8,
}

// Rank returns the display tie-break rank of the kind. Unknown kinds sort last.
func (k Kind) Rank() int {
	if r, ok := kindRanks[k]; ok {
		return r
	}
	return len(kindRanks)
}

// Valid reports whether the kind is one of the known resource kinds.
func (k Kind) Valid() bool {
	_, ok := kindRanks[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// Key is the identity of a resource within a graph. Two handles describing
// the same provider resource always produce the same key.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string { return fmt.Sprintf("%s/%s", k.Kind, k.ID) }

// Attribute names used in Handle.Attrs. Values are always plain strings;
// multi-valued attributes are comma-joined.
const (
	AttrState          = "state"
	AttrPublicIP       = "public-ip"
	AttrLaunchTime     = "launch-time"
	AttrVpcID          = "vpc-id"
	AttrSubnetID       = "subnet-id"
	AttrSecurityGroups = "security-group-ids"
	AttrProfileArn     = "instance-profile-arn"
	AttrAssociationID  = "profile-association-id"
	AttrInstanceID     = "instance-id"
	AttrGroupName      = "group-name"
	AttrIsDefault      = "is-default"
	AttrClusterStatus  = "cluster-status"
	AttrCidrBlock      = "cidr-block"
)

// Handle is an immutable reference to a discovered AWS resource together
// with the attributes needed to delete it.
type Handle struct {
	Kind   Kind
	ID     string
	Region string
	Attrs  map[string]string
}

// Key returns the graph identity of the handle.
func (h Handle) Key() Key { return Key{Kind: h.Kind, ID: h.ID} }

// Attr returns the named attribute, or "" when absent.
func (h Handle) Attr(name string) string {
	return h.Attrs[name]
}

func (h Handle) String() string { return h.Key().String() }
