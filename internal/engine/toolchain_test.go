package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrioso-software/qriosdeploy/internal/config"
)

func toolchainConfig(t *testing.T) (*config.DeployConfig, string) {
	t.Helper()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "api.zip")

	cfg := testConfig()
	cfg.Functions.Primary.Artifact = artifact
	cfg.Functions.Authorizer.Enabled = false
	cfg.Build = config.CommandConfig{Command: []string{"sh", "-c", "exit 0"}}
	cfg.Package = config.CommandConfig{Command: []string{"sh", "-c", "echo content > " + artifact}}
	return cfg, artifact
}

func TestToolchainBuildAndPackage(t *testing.T) {
	cfg, _ := toolchainConfig(t)
	tc := NewToolchain(cfg)

	require.NoError(t, tc.Build(context.Background()))
	require.NoError(t, tc.Package(context.Background()))
}

func TestToolchainBuildFailure(t *testing.T) {
	cfg, _ := toolchainConfig(t)
	cfg.Build.Command = []string{"sh", "-c", "exit 3"}
	tc := NewToolchain(cfg)

	err := tc.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build command failed")
}

func TestToolchainPackageMissingArtifact(t *testing.T) {
	cfg, artifact := toolchainConfig(t)
	// The command succeeds but never writes the artifact.
	cfg.Package.Command = []string{"sh", "-c", "exit 0"}
	tc := NewToolchain(cfg)

	err := tc.Package(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), artifact)
}

func TestToolchainPackageChecksAuthorizerArtifact(t *testing.T) {
	cfg, _ := toolchainConfig(t)
	cfg.Functions.Authorizer.Enabled = true
	cfg.Functions.Authorizer.Artifact = filepath.Join(t.TempDir(), "authorizer.zip")
	tc := NewToolchain(cfg)

	err := tc.Package(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authorizer.zip")
}
