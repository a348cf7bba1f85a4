package provision

import (
	"context"

	"github.com/qrioso-software/qriosdeploy/internal/config"
)

// Service bundles the stack and function clients behind the two calls the
// orchestration engine makes.
type Service struct {
	cfg       *config.DeployConfig
	stacks    *StackClient
	functions *FunctionClient
}

// NewService builds the AWS clients for the configured region.
func NewService(ctx context.Context, cfg *config.DeployConfig) (*Service, error) {
	stacks, err := NewStackClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	functions, err := NewFunctionClient(ctx, cfg.Region, cfg.Upload.Bucket, cfg.Upload.Prefix)
	if err != nil {
		return nil, err
	}

	return &Service{cfg: cfg, stacks: stacks, functions: functions}, nil
}

// DeployStack submits the configured template and returns the stack outputs.
func (s *Service) DeployStack(ctx context.Context) (map[string]string, error) {
	return s.stacks.Deploy(ctx, s.cfg.Stack, s.cfg.Template, s.cfg.Capabilities)
}

// UpdateFunctionCode pushes a packaged artifact to the named function.
func (s *Service) UpdateFunctionCode(ctx context.Context, functionName, artifactPath string) error {
	return s.functions.UpdateCode(ctx, functionName, artifactPath)
}

// StackOutputs returns the current outputs of the configured stack without
// deploying anything.
func (s *Service) StackOutputs(ctx context.Context) (map[string]string, error) {
	return s.stacks.Outputs(ctx, s.cfg.Stack)
}
