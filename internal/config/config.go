// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads the deployment config from path. Every key can be overridden
// through the environment with a QDEPLOY_ prefix and underscores for
// nesting, e.g. QDEPLOY_REGION=eu-west-1 or QDEPLOY_UPLOAD_BUCKET=my-bucket.
func Load(path string) (*DeployConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("QDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var c DeployConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return &c, nil
}

// bindEnvKeys registers every config key with viper. AutomaticEnv alone
// only surfaces keys viper already knows from the file or the defaults, so
// without the explicit binds an override like QDEPLOY_UPLOAD_BUCKET would
// be dropped whenever the file omits the upload section.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"stack",
		"region",
		"template",
		"capabilities",
		"build.command",
		"build.dir",
		"package.command",
		"package.dir",
		"functions.primary.artifact",
		"functions.authorizer.enabled",
		"functions.authorizer.functionName",
		"functions.authorizer.artifact",
		"outputs.functionArnKey",
		"outputs.endpointKey",
		"report.envVar",
		"upload.bucket",
		"upload.prefix",
		"watch.paths",
	} {
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "us-east-1")
	v.SetDefault("outputs.functionArnKey", "LambdaFunctionArn")
	v.SetDefault("outputs.endpointKey", "ApiEndpoint")
	v.SetDefault("report.envVar", "ADMIN_API_URL")
	v.SetDefault("upload.prefix", "artifacts")
	v.SetDefault("functions.authorizer.enabled", true)
}

// ValidateTemplate parses the CloudFormation template as YAML before any
// cloud call, so an unreadable or syntactically broken template fails the
// run locally.
func (c *DeployConfig) ValidateTemplate() error {
	b, err := os.ReadFile(c.Template)
	if err != nil {
		return fmt.Errorf("error reading template %s: %w", c.Template, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("template %s is not valid YAML: %w", c.Template, err)
	}
	if _, ok := doc["Resources"]; !ok {
		return fmt.Errorf("template %s declares no Resources section", c.Template)
	}
	return nil
}
