package handlers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imamik/teardown/internal/aws"
	"github.com/imamik/teardown/internal/config"
	"github.com/imamik/teardown/internal/resource"
)

// fakeProvider serves a one-VPC closure and records mutating calls.
type fakeProvider struct {
	mu      sync.Mutex
	deletes []resource.Key
	fail    map[resource.Key]error

	vpc     resource.Handle
	subnets []resource.Handle
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		fail: map[resource.Key]error{},
		vpc:  resource.Handle{Kind: resource.KindVpc, ID: "vpc-1", Region: "eu-central-1"},
		subnets: []resource.Handle{
			{Kind: resource.KindSubnet, ID: "subnet-1", Region: "eu-central-1"},
		},
	}
}

func (f *fakeProvider) LookupInstance(_ context.Context, id string) (resource.Handle, error) {
	return resource.Handle{}, fmt.Errorf("describe instance %s: %w", id, aws.ErrNotFound)
}

func (f *fakeProvider) InstancesByPublicIP(context.Context, string) ([]resource.Handle, error) {
	return nil, nil
}

func (f *fakeProvider) LookupVpc(_ context.Context, id string) (resource.Handle, error) {
	if id != f.vpc.ID {
		return resource.Handle{}, fmt.Errorf("describe vpc %s: %w", id, aws.ErrNotFound)
	}
	return f.vpc, nil
}

func (f *fakeProvider) InstancesInVpc(context.Context, string) ([]resource.Handle, error) {
	return nil, nil
}

func (f *fakeProvider) SubnetsOf(context.Context, string) ([]resource.Handle, error) {
	return f.subnets, nil
}

func (f *fakeProvider) InternetGatewaysOf(context.Context, string) ([]resource.Handle, error) {
	return nil, nil
}

func (f *fakeProvider) VpcEndpointsOf(context.Context, string) ([]resource.Handle, error) {
	return nil, nil
}

func (f *fakeProvider) SecurityGroupsOf(context.Context, string) ([]resource.Handle, error) {
	return nil, nil
}

func (f *fakeProvider) AutoScalingGroupOf(context.Context, string) (resource.Handle, bool, error) {
	return resource.Handle{}, false, nil
}

func (f *fakeProvider) AutoScalingGroupMembers(context.Context, string) ([]string, error) {
	return nil, nil
}

func (f *fakeProvider) ClusterOf(context.Context, string) (resource.Handle, bool, error) {
	return resource.Handle{}, false, nil
}

func (f *fakeProvider) InstanceProfileBindingOf(context.Context, string) (resource.Handle, bool, error) {
	return resource.Handle{}, false, nil
}

func (f *fakeProvider) Delete(_ context.Context, h resource.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, h.Key())
	return f.fail[h.Key()]
}

func (f *fakeProvider) Detach(ctx context.Context, h resource.Handle) error {
	return f.Delete(ctx, h)
}

func (f *fakeProvider) deleted() []resource.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]resource.Key, len(f.deletes))
	copy(out, f.deletes)
	return out
}

// withFakes swaps the factory functions for the duration of one test.
func withFakes(t *testing.T, provider *fakeProvider, terminal bool, confirm bool) {
	t.Helper()

	origProvider := newProvider
	origTerminal := stdoutIsTerminal
	origConfirm := confirmExecute
	t.Cleanup(func() {
		newProvider = origProvider
		stdoutIsTerminal = origTerminal
		confirmExecute = origConfirm
	})

	newProvider = func(context.Context, string) (aws.Provider, error) {
		return provider, nil
	}
	stdoutIsTerminal = func() bool { return terminal }
	confirmExecute = func(context.Context, int, int) (bool, error) {
		return confirm, nil
	}
}

func baseOptions() DestroyOptions {
	return DestroyOptions{
		Region: "eu-central-1",
		VpcID:  "vpc-1",
	}
}

func TestDestroy_DryRunByDefault(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, false, false)

	err := Destroy(context.Background(), baseOptions())

	require.NoError(t, err)
	require.Empty(t, provider.deleted(), "dry run must not issue mutating calls")
}

func TestDestroy_ExecuteWithYes(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, false, false)

	opts := baseOptions()
	opts.Execute = true
	opts.Yes = true

	err := Destroy(context.Background(), opts)

	require.NoError(t, err)
	deleted := provider.deleted()
	require.Len(t, deleted, 2)
	// The subnet phase precedes the VPC phase.
	require.Equal(t, resource.Key{Kind: resource.KindSubnet, ID: "subnet-1"}, deleted[0])
	require.Equal(t, resource.Key{Kind: resource.KindVpc, ID: "vpc-1"}, deleted[1])
}

func TestDestroy_ExecuteWithoutTerminalRequiresYes(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, false, true)

	opts := baseOptions()
	opts.Execute = true

	err := Destroy(context.Background(), opts)

	require.Error(t, err)
	require.Contains(t, err.Error(), "--yes")
	require.Empty(t, provider.deleted())
}

func TestDestroy_ConfirmationDeclined(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, true, false)

	opts := baseOptions()
	opts.Execute = true

	err := Destroy(context.Background(), opts)

	require.NoError(t, err)
	require.Empty(t, provider.deleted(), "a declined confirmation must delete nothing")
}

func TestDestroy_ConfirmationAccepted(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, true, true)

	opts := baseOptions()
	opts.Execute = true

	err := Destroy(context.Background(), opts)

	require.NoError(t, err)
	require.Len(t, provider.deleted(), 2)
}

func TestDestroy_SeedNotFound(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, false, false)

	opts := baseOptions()
	opts.VpcID = "vpc-missing"

	err := Destroy(context.Background(), opts)

	require.Error(t, err)
	require.Contains(t, err.Error(), "vpc-missing")
}

func TestDestroy_FailedRunReturnsError(t *testing.T) {
	provider := newFakeProvider()
	subnetKey := resource.Key{Kind: resource.KindSubnet, ID: "subnet-1"}
	provider.fail[subnetKey] = fmt.Errorf("cannot delete")
	withFakes(t, provider, false, false)

	opts := baseOptions()
	opts.Execute = true
	opts.Yes = true
	opts.MaxAttempts = 1

	err := Destroy(context.Background(), opts)

	require.Error(t, err)
	require.Contains(t, err.Error(), "failures")
	// The blocked VPC must never be attempted.
	for _, k := range provider.deleted() {
		require.NotEqual(t, resource.Key{Kind: resource.KindVpc, ID: "vpc-1"}, k)
	}
}

func TestDestroy_InvalidRegionConfig(t *testing.T) {
	provider := newFakeProvider()
	withFakes(t, provider, false, false)

	opts := baseOptions()
	opts.Region = ""

	err := Destroy(context.Background(), opts)

	require.Error(t, err)
	require.Contains(t, err.Error(), "region")
}

func TestResolveConfig_FlagOverrides(t *testing.T) {
	opts := DestroyOptions{
		Region:      "us-east-1",
		Parallelism: 8,
		MaxAttempts: 5,
	}

	cfg, err := resolveConfig(opts)

	require.NoError(t, err)
	require.Equal(t, "us-east-1", cfg.Region)
	require.Equal(t, 8, cfg.Parallelism)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, config.DefaultInitialDelay, cfg.Retry.InitialDelay)
}

func TestResolveConfig_FileWithFlagPrecedence(t *testing.T) {
	origLoad := loadConfigFile
	t.Cleanup(func() { loadConfigFile = origLoad })
	loadConfigFile = func(string) (*config.Config, error) {
		cfg := config.Default()
		cfg.Region = "eu-west-1"
		cfg.Parallelism = 2
		return cfg, nil
	}

	opts := DestroyOptions{
		ConfigPath: "teardown.yaml",
		Region:     "eu-central-1",
	}

	cfg, err := resolveConfig(opts)

	require.NoError(t, err)
	require.Equal(t, "eu-central-1", cfg.Region, "flags override the file")
	require.Equal(t, 2, cfg.Parallelism, "file values survive when no flag is set")
}

func TestDestroyOptions_Seed(t *testing.T) {
	require.Equal(t, "i-1", DestroyOptions{InstanceID: "i-1"}.Seed())
	require.Equal(t, "203.0.113.10", DestroyOptions{PublicIP: "203.0.113.10"}.Seed())
	require.Equal(t, "vpc-1", DestroyOptions{VpcID: "vpc-1"}.Seed())
	require.Equal(t, "", DestroyOptions{}.Seed())
}
