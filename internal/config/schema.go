package config

import (
	"fmt"
	"regexp"
)

// DeployConfig is the root of qrioso-deploy.yml. It is loaded once at
// startup and never mutated afterwards; every pipeline step reads from it.
type DeployConfig struct {
	Stack        string   `mapstructure:"stack" yaml:"stack"`
	Region       string   `mapstructure:"region" yaml:"region"`
	Template     string   `mapstructure:"template" yaml:"template"`
	Capabilities []string `mapstructure:"capabilities" yaml:"capabilities"`

	Build   CommandConfig `mapstructure:"build" yaml:"build"`
	Package CommandConfig `mapstructure:"package" yaml:"package"`

	Functions FunctionsConfig `mapstructure:"functions" yaml:"functions"`
	Outputs   OutputsConfig   `mapstructure:"outputs" yaml:"outputs"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Upload    UploadConfig    `mapstructure:"upload" yaml:"upload"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
}

// CommandConfig describes an external toolchain invocation.
type CommandConfig struct {
	Command []string `mapstructure:"command" yaml:"command"`
	Dir     string   `mapstructure:"dir" yaml:"dir"`
}

// FunctionsConfig names the deployable artifacts of the stack.
type FunctionsConfig struct {
	Primary    ArtifactConfig   `mapstructure:"primary" yaml:"primary"`
	Authorizer AuthorizerConfig `mapstructure:"authorizer" yaml:"authorizer"`
}

// ArtifactConfig points at a packaged zip ready for upload.
type ArtifactConfig struct {
	Artifact string `mapstructure:"artifact" yaml:"artifact"`
}

// AuthorizerConfig controls the optional authorizer update step. The name
// is a convention (<stack>-authorizer), never queried from the stack;
// FunctionName overrides the convention when a template names it differently.
type AuthorizerConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	FunctionName string `mapstructure:"functionName" yaml:"functionName"`
	Artifact     string `mapstructure:"artifact" yaml:"artifact"`
}

// OutputsConfig names the stack output keys the orchestrator resolves.
type OutputsConfig struct {
	FunctionArnKey string `mapstructure:"functionArnKey" yaml:"functionArnKey"`
	EndpointKey    string `mapstructure:"endpointKey" yaml:"endpointKey"`
}

// ReportConfig shapes the final operator report.
type ReportConfig struct {
	// EnvVar is the environment variable a dependent hosting platform must
	// set to the reported endpoint.
	EnvVar string `mapstructure:"envVar" yaml:"envVar"`
}

// UploadConfig selects S3 staging for function code. With an empty Bucket,
// artifacts under the direct-upload limit are pushed inline.
type UploadConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// WatchConfig lists the source directories the watch command monitors.
type WatchConfig struct {
	Paths []string `mapstructure:"paths" yaml:"paths"`
}

func (c *DeployConfig) Validate() error {
	if c.Stack == "" {
		return fmt.Errorf("field 'stack' is required")
	}
	if !isValidStackName(c.Stack) {
		return fmt.Errorf("stack name '%s' is invalid. Only alphanumeric and hyphens allowed", c.Stack)
	}
	if c.Region == "" {
		return fmt.Errorf("field 'region' is required")
	}
	if c.Template == "" {
		return fmt.Errorf("field 'template' is required")
	}
	if err := c.Build.Validate("build"); err != nil {
		return err
	}
	if err := c.Package.Validate("package"); err != nil {
		return err
	}
	if c.Functions.Primary.Artifact == "" {
		return fmt.Errorf("functions.primary.artifact is required")
	}
	if c.Functions.Authorizer.Enabled && c.Functions.Authorizer.Artifact == "" {
		return fmt.Errorf("functions.authorizer.artifact is required when the authorizer is enabled")
	}
	if c.Outputs.FunctionArnKey == "" {
		return fmt.Errorf("outputs.functionArnKey is required")
	}
	if c.Outputs.EndpointKey == "" {
		return fmt.Errorf("outputs.endpointKey is required")
	}
	return nil
}

func (cc *CommandConfig) Validate(section string) error {
	if len(cc.Command) == 0 {
		return fmt.Errorf("%s.command is required", section)
	}
	if cc.Command[0] == "" {
		return fmt.Errorf("%s.command must name an executable", section)
	}
	return nil
}

// AuthorizerName resolves the authorizer function name: the configured
// override when present, otherwise the <stack>-authorizer convention.
func (c *DeployConfig) AuthorizerName() string {
	if c.Functions.Authorizer.FunctionName != "" {
		return c.Functions.Authorizer.FunctionName
	}
	return c.Stack + "-authorizer"
}

func isValidStackName(name string) bool {
	match, _ := regexp.MatchString("^[a-zA-Z0-9-]+$", name)
	return match
}
