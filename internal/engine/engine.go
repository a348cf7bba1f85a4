// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/qrioso-software/qriosdeploy/internal/config"
	"github.com/qrioso-software/qriosdeploy/internal/provision"
)

// Builder produces deployable artifacts from the source tree.
type Builder interface {
	Build(ctx context.Context) error
}

// Packager bundles built artifacts into upload-ready archives.
type Packager interface {
	Package(ctx context.Context) error
}

// Provisioner is the external service that owns all infrastructure state.
type Provisioner interface {
	DeployStack(ctx context.Context) (map[string]string, error)
	UpdateFunctionCode(ctx context.Context, functionName, artifactPath string) error
}

// Engine sequences one deployment: build, package, deploy infrastructure,
// update function code, report the endpoint. It fails fast: the first step
// error aborts the run and nothing is retried or rolled back. State of
// record lives entirely in the provisioning service; re-running the whole
// workflow is the only recovery path.
type Engine struct {
	cfg      *config.DeployConfig
	builder  Builder
	packager Packager
	prov     Provisioner

	// Out receives the final operator report. Progress goes to the log.
	Out io.Writer

	// SkipBuild skips the build step for pre-built source trees.
	SkipBuild bool

	// Resolved during the run, write-once.
	state           State
	outputs         map[string]string
	primaryFunction string
	endpoint        string
}

// New creates an engine over the given collaborators.
func New(cfg *config.DeployConfig, builder Builder, packager Packager, prov Provisioner) *Engine {
	return &Engine{
		cfg:      cfg,
		builder:  builder,
		packager: packager,
		prov:     prov,
		Out:      os.Stdout,
		state:    StateNotStarted,
	}
}

// Deploy runs the full workflow. Each step's external call is attempted
// exactly once; the failing step's error is wrapped with the step name and
// returned.
func (e *Engine) Deploy(ctx context.Context) error {
	if e.SkipBuild {
		log.Println("⏭ Skipping build step")
	} else {
		if err := e.builder.Build(ctx); err != nil {
			return e.fail("build", err)
		}
	}
	e.state = StateBuilt

	if err := e.packager.Package(ctx); err != nil {
		return e.fail("package", err)
	}
	e.state = StatePackaged

	outputs, err := e.prov.DeployStack(ctx)
	if err != nil {
		return e.fail("deploy infrastructure", err)
	}
	e.outputs = outputs
	e.state = StateInfrastructureDeployed

	arn, err := provision.LookupOutput(e.cfg.Stack, outputs, e.cfg.Outputs.FunctionArnKey)
	if err != nil {
		return e.fail("resolve primary function", err)
	}
	name, err := provision.FunctionNameFromARN(arn)
	if err != nil {
		return e.fail("resolve primary function", err)
	}
	e.primaryFunction = name
	log.Printf("🔎 Primary function resolved from stack outputs: %s", name)

	if err := e.prov.UpdateFunctionCode(ctx, e.primaryFunction, e.cfg.Functions.Primary.Artifact); err != nil {
		return e.fail("update primary function", err)
	}
	e.state = StatePrimaryUpdated

	if e.cfg.Functions.Authorizer.Enabled {
		// The authorizer name is derived by convention, never queried.
		log.Printf("🔎 Authorizer function derived by convention: %s", e.cfg.AuthorizerName())
		if err := e.prov.UpdateFunctionCode(ctx, e.cfg.AuthorizerName(), e.cfg.Functions.Authorizer.Artifact); err != nil {
			return e.fail("update authorizer function", err)
		}
	} else {
		log.Println("⏭ Authorizer update disabled in config")
	}
	e.state = StateAuthorizerUpdated

	endpoint, err := provision.LookupOutput(e.cfg.Stack, outputs, e.cfg.Outputs.EndpointKey)
	if err != nil {
		return e.fail("resolve endpoint", err)
	}
	e.endpoint = endpoint

	e.report()
	e.state = StateReported
	return nil
}

// PushCode re-runs only the toolchain and code-update steps against the
// function references resolved by an earlier Deploy. Watch mode uses this
// to push changes without touching the infrastructure.
func (e *Engine) PushCode(ctx context.Context) error {
	if e.primaryFunction == "" {
		return fmt.Errorf("no resolved function references; run a full deploy first")
	}

	if err := e.builder.Build(ctx); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := e.packager.Package(ctx); err != nil {
		return fmt.Errorf("package: %w", err)
	}
	if err := e.prov.UpdateFunctionCode(ctx, e.primaryFunction, e.cfg.Functions.Primary.Artifact); err != nil {
		return fmt.Errorf("update primary function: %w", err)
	}
	if e.cfg.Functions.Authorizer.Enabled {
		if err := e.prov.UpdateFunctionCode(ctx, e.cfg.AuthorizerName(), e.cfg.Functions.Authorizer.Artifact); err != nil {
			return fmt.Errorf("update authorizer function: %w", err)
		}
	}
	return nil
}

func (e *Engine) report() {
	fmt.Fprintf(e.Out, "🌐 Endpoint: %s\n", e.endpoint)
	fmt.Fprintf(e.Out, "👉 Set %s=%s on the dependent hosting platform\n", e.cfg.Report.EnvVar, e.endpoint)
}

func (e *Engine) fail(step string, err error) error {
	e.state = StateFailed
	return fmt.Errorf("%s: %w", step, err)
}

// State returns the workflow state reached so far.
func (e *Engine) State() State { return e.state }

// Endpoint returns the resolved public endpoint, empty until reported.
func (e *Engine) Endpoint() string { return e.endpoint }

// PrimaryFunction returns the resolved primary function name.
func (e *Engine) PrimaryFunction() string { return e.primaryFunction }
