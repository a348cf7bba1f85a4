package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrioso-software/qriosdeploy/internal/config"
	"github.com/qrioso-software/qriosdeploy/internal/provision"
)

type fakeBuilder struct {
	calls int
	err   error
}

func (f *fakeBuilder) Build(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakePackager struct {
	calls int
	err   error
}

func (f *fakePackager) Package(ctx context.Context) error {
	f.calls++
	return f.err
}

type codeUpdate struct {
	function string
	artifact string
}

type fakeProvisioner struct {
	deployCalls int
	deployErr   error
	outputs     map[string]string

	updates   []codeUpdate
	updateErr map[string]error
}

func (f *fakeProvisioner) DeployStack(ctx context.Context) (map[string]string, error) {
	f.deployCalls++
	if f.deployErr != nil {
		return nil, f.deployErr
	}
	return f.outputs, nil
}

func (f *fakeProvisioner) UpdateFunctionCode(ctx context.Context, functionName, artifactPath string) error {
	if err := f.updateErr[functionName]; err != nil {
		return err
	}
	f.updates = append(f.updates, codeUpdate{function: functionName, artifact: artifactPath})
	return nil
}

func testConfig() *config.DeployConfig {
	return &config.DeployConfig{
		Stack:    "weaviate-admin-api",
		Region:   "us-east-1",
		Template: "template.yml",
		Build:    config.CommandConfig{Command: []string{"true"}},
		Package:  config.CommandConfig{Command: []string{"true"}},
		Functions: config.FunctionsConfig{
			Primary:    config.ArtifactConfig{Artifact: "build/api.zip"},
			Authorizer: config.AuthorizerConfig{Enabled: true, Artifact: "build/authorizer.zip"},
		},
		Outputs: config.OutputsConfig{
			FunctionArnKey: "LambdaFunctionArn",
			EndpointKey:    "ApiEndpoint",
		},
		Report: config.ReportConfig{EnvVar: "ADMIN_API_URL"},
	}
}

func happyOutputs() map[string]string {
	return map[string]string{
		"LambdaFunctionArn": "arn:aws:lambda:us-east-1:123:function:fn-a",
		"ApiEndpoint":       "https://x.example/prod",
	}
}

func TestDeploySuccess(t *testing.T) {
	builder := &fakeBuilder{}
	packager := &fakePackager{}
	prov := &fakeProvisioner{outputs: happyOutputs()}

	eng := New(testConfig(), builder, packager, prov)
	var out bytes.Buffer
	eng.Out = &out

	require.NoError(t, eng.Deploy(context.Background()))

	assert.Equal(t, StateReported, eng.State())
	assert.Equal(t, "https://x.example/prod", eng.Endpoint())
	assert.Equal(t, "fn-a", eng.PrimaryFunction())
	assert.Equal(t, 1, builder.calls)
	assert.Equal(t, 1, packager.calls)
	assert.Equal(t, 1, prov.deployCalls)

	require.Len(t, prov.updates, 2)
	assert.Equal(t, codeUpdate{function: "fn-a", artifact: "build/api.zip"}, prov.updates[0])
	assert.Equal(t, codeUpdate{function: "weaviate-admin-api-authorizer", artifact: "build/authorizer.zip"}, prov.updates[1])

	assert.Contains(t, out.String(), "https://x.example/prod")
	assert.Contains(t, out.String(), "ADMIN_API_URL=https://x.example/prod")
}

func TestDeployHaltsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name        string
		arrange     func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner)
		wantDeploys int
		wantUpdates int
	}{
		{
			name: "build fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				b.err = boom
			},
			wantDeploys: 0,
			wantUpdates: 0,
		},
		{
			name: "package fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				p.err = boom
			},
			wantDeploys: 0,
			wantUpdates: 0,
		},
		{
			name: "infrastructure deploy fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				prov.deployErr = boom
			},
			wantDeploys: 1,
			wantUpdates: 0,
		},
		{
			name: "primary function resolution fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				delete(prov.outputs, "LambdaFunctionArn")
			},
			wantDeploys: 1,
			wantUpdates: 0,
		},
		{
			name: "primary update fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				prov.updateErr = map[string]error{"fn-a": boom}
			},
			wantDeploys: 1,
			wantUpdates: 0,
		},
		{
			name: "authorizer update fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				prov.updateErr = map[string]error{"weaviate-admin-api-authorizer": boom}
			},
			wantDeploys: 1,
			wantUpdates: 1,
		},
		{
			name: "endpoint resolution fails",
			arrange: func(cfg *config.DeployConfig, b *fakeBuilder, p *fakePackager, prov *fakeProvisioner) {
				delete(prov.outputs, "ApiEndpoint")
			},
			wantDeploys: 1,
			wantUpdates: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			builder := &fakeBuilder{}
			packager := &fakePackager{}
			prov := &fakeProvisioner{outputs: happyOutputs()}
			tt.arrange(cfg, builder, packager, prov)

			eng := New(cfg, builder, packager, prov)
			var out bytes.Buffer
			eng.Out = &out

			err := eng.Deploy(context.Background())
			require.Error(t, err)
			assert.Equal(t, StateFailed, eng.State())
			assert.Equal(t, tt.wantDeploys, prov.deployCalls)
			assert.Len(t, prov.updates, tt.wantUpdates)
			// No partial endpoint line ever reaches the operator on failure.
			assert.Empty(t, out.String())
		})
	}
}

func TestDeployMissingEndpointIsResolutionError(t *testing.T) {
	prov := &fakeProvisioner{outputs: map[string]string{
		"LambdaFunctionArn": "arn:aws:lambda:us-east-1:123:function:fn-a",
	}}
	eng := New(testConfig(), &fakeBuilder{}, &fakePackager{}, prov)
	var out bytes.Buffer
	eng.Out = &out

	err := eng.Deploy(context.Background())
	require.Error(t, err)

	var missing *provision.MissingOutputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ApiEndpoint", missing.Key)
	assert.Empty(t, eng.Endpoint())
	assert.Empty(t, out.String())
}

func TestDeployAuthorizerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Functions.Authorizer.Enabled = false

	prov := &fakeProvisioner{outputs: happyOutputs()}
	eng := New(cfg, &fakeBuilder{}, &fakePackager{}, prov)
	eng.Out = &bytes.Buffer{}

	require.NoError(t, eng.Deploy(context.Background()))
	assert.Equal(t, StateReported, eng.State())
	require.Len(t, prov.updates, 1)
	assert.Equal(t, "fn-a", prov.updates[0].function)
}

func TestDeployAuthorizerNameOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Functions.Authorizer.FunctionName = "custom-authz"

	prov := &fakeProvisioner{outputs: happyOutputs()}
	eng := New(cfg, &fakeBuilder{}, &fakePackager{}, prov)
	eng.Out = &bytes.Buffer{}

	require.NoError(t, eng.Deploy(context.Background()))
	require.Len(t, prov.updates, 2)
	assert.Equal(t, "custom-authz", prov.updates[1].function)
}

func TestDeploySkipBuild(t *testing.T) {
	builder := &fakeBuilder{}
	prov := &fakeProvisioner{outputs: happyOutputs()}
	eng := New(testConfig(), builder, &fakePackager{}, prov)
	eng.Out = &bytes.Buffer{}
	eng.SkipBuild = true

	require.NoError(t, eng.Deploy(context.Background()))
	assert.Equal(t, 0, builder.calls)
	assert.Equal(t, StateReported, eng.State())
}

func TestPushCodeRequiresResolvedFunctions(t *testing.T) {
	eng := New(testConfig(), &fakeBuilder{}, &fakePackager{}, &fakeProvisioner{})
	err := eng.PushCode(context.Background())
	require.Error(t, err)
}

func TestPushCodeAfterDeploy(t *testing.T) {
	builder := &fakeBuilder{}
	packager := &fakePackager{}
	prov := &fakeProvisioner{outputs: happyOutputs()}
	eng := New(testConfig(), builder, packager, prov)
	eng.Out = &bytes.Buffer{}

	require.NoError(t, eng.Deploy(context.Background()))
	require.NoError(t, eng.PushCode(context.Background()))

	assert.Equal(t, 2, builder.calls)
	assert.Equal(t, 2, packager.calls)
	assert.Equal(t, 1, prov.deployCalls)
	assert.Len(t, prov.updates, 4)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "NotStarted", StateNotStarted.String())
	assert.Equal(t, "Reported", StateReported.String())
	assert.Equal(t, "Failed", StateFailed.String())
}
