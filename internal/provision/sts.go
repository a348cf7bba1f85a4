package provision

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CallerIdentity resolves the ARN of the current AWS credentials. Used by
// the doctor command as a credential preflight.
func CallerIdentity(ctx context.Context, region string) (string, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return "", fmt.Errorf("error loading AWS config: %w", err)
	}

	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("error resolving caller identity: %w", err)
	}
	if out.Arn == nil {
		return "", fmt.Errorf("caller identity response carried no ARN")
	}
	return *out.Arn, nil
}
