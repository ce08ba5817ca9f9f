package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/k-taniguchi/sidekick/pkg/model"
	"github.com/k-taniguchi/sidekick/pkg/policy"
)

func TestDefaultPolicyAllowsEverything(t *testing.T) {
	ctx := context.Background()
	approver, err := policy.New(ctx, "")
	gt.NoError(t, err)

	allowed, err := approver.Approve(ctx, policy.Input{
		Role:       model.RolePrimary,
		Capability: "manage_memory",
		Args:       map[string]any{"action": "put"},
	})
	gt.NoError(t, err)
	gt.True(t, allowed)
}

func TestCustomPolicyReplacesDefault(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	// Specialists may only run read-only capabilities.
	customPolicy := `package approval

import rego.v1

default allow := false

allow if {
	input.role == "primary"
}

allow if {
	input.read_only == true
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(tmpDir, "approval.rego"), []byte(customPolicy), 0644))

	approver, err := policy.New(ctx, tmpDir)
	gt.NoError(t, err)

	allowed, err := approver.Approve(ctx, policy.Input{
		Role:       model.RoleStatus,
		Capability: "manage_memory",
		ReadOnly:   false,
	})
	gt.NoError(t, err)
	gt.False(t, allowed)

	allowed, err = approver.Approve(ctx, policy.Input{
		Role:       model.RoleStatus,
		Capability: "list_channels",
		ReadOnly:   true,
	})
	gt.NoError(t, err)
	gt.True(t, allowed)

	allowed, err = approver.Approve(ctx, policy.Input{
		Role:       model.RolePrimary,
		Capability: "manage_memory",
		ReadOnly:   false,
	})
	gt.NoError(t, err)
	gt.True(t, allowed)
}

func TestEmptyPolicyDirFallsBack(t *testing.T) {
	ctx := context.Background()

	// A directory without *.rego files keeps the embedded default.
	approver, err := policy.New(ctx, t.TempDir())
	gt.NoError(t, err)

	allowed, err := approver.Approve(ctx, policy.Input{
		Role:       model.RoleArchivist,
		Capability: "manage_memory",
	})
	gt.NoError(t, err)
	gt.True(t, allowed)
}
