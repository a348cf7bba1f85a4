package provision

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/briandowns/spinner"
)

// stackWaitTimeout bounds the waiters only; CloudFormation itself decides
// when a deployment has failed.
const stackWaitTimeout = 30 * time.Minute

// StackClient wraps the CloudFormation client for one region.
type StackClient struct {
	client *cloudformation.Client
	region string
}

// NewStackClient creates a CloudFormation client for the given region.
func NewStackClient(ctx context.Context, region string) (*StackClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	return &StackClient{
		client: cloudformation.NewFromConfig(cfg),
		region: region,
	}, nil
}

// Deploy submits the template with create-or-update semantics: the stack is
// created when absent and updated when present, mirroring what
// `aws cloudformation deploy` does. It blocks until the stack reaches a
// terminal state and returns the stack outputs. No rollback is attempted
// here; that is CloudFormation's own responsibility.
func (c *StackClient) Deploy(ctx context.Context, stackName, templatePath string, capabilities []string) (map[string]string, error) {
	body, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("error reading template %s: %w", templatePath, err)
	}

	exists, err := c.stackExists(ctx, stackName)
	if err != nil {
		return nil, err
	}

	caps := make([]types.Capability, 0, len(capabilities))
	for _, capability := range capabilities {
		caps = append(caps, types.Capability(capability))
	}

	if exists {
		log.Printf("🚀 Updating stack %s in %s", stackName, c.region)
		_, err = c.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
			StackName:    aws.String(stackName),
			TemplateBody: aws.String(string(body)),
			Capabilities: caps,
		})
		if err != nil {
			// An update with nothing to change is a success for our
			// purposes: the stack already matches the template.
			if strings.Contains(err.Error(), "No updates are to be performed") {
				log.Printf("✅ Stack %s is already up to date", stackName)
				return c.Outputs(ctx, stackName)
			}
			return nil, fmt.Errorf("error updating stack %s: %w", stackName, err)
		}

		if err := c.waitFor(ctx, stackName, "update"); err != nil {
			return nil, err
		}
	} else {
		log.Printf("🚀 Creating stack %s in %s", stackName, c.region)
		_, err = c.client.CreateStack(ctx, &cloudformation.CreateStackInput{
			StackName:    aws.String(stackName),
			TemplateBody: aws.String(string(body)),
			Capabilities: caps,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating stack %s: %w", stackName, err)
		}

		if err := c.waitFor(ctx, stackName, "create"); err != nil {
			return nil, err
		}
	}

	log.Printf("✅ Stack %s deployed", stackName)
	return c.Outputs(ctx, stackName)
}

// Outputs returns the stack's output key/value pairs.
func (c *StackClient) Outputs(ctx context.Context, stackName string) (map[string]string, error) {
	result, err := c.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return nil, fmt.Errorf("error describing stack %s: %w", stackName, err)
	}
	if len(result.Stacks) == 0 {
		return nil, fmt.Errorf("stack %s not found in %s", stackName, c.region)
	}

	outputs := make(map[string]string, len(result.Stacks[0].Outputs))
	for _, out := range result.Stacks[0].Outputs {
		if out.OutputKey != nil && out.OutputValue != nil {
			outputs[*out.OutputKey] = *out.OutputValue
		}
	}
	return outputs, nil
}

func (c *StackClient) stackExists(ctx context.Context, stackName string) (bool, error) {
	_, err := c.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return false, nil
		}
		return false, fmt.Errorf("error describing stack %s: %w", stackName, err)
	}
	return true, nil
}

// waitFor blocks until the create/update settles, with a spinner so the
// operator can tell the process is alive during long provisioning waits.
func (c *StackClient) waitFor(ctx context.Context, stackName, operation string) error {
	s := spinner.New(spinner.CharSets[9], 200*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Waiting for stack %s %s to complete ...", stackName, operation)
	s.Start()
	defer s.Stop()

	input := &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}

	var err error
	switch operation {
	case "create":
		waiter := cloudformation.NewStackCreateCompleteWaiter(c.client)
		err = waiter.Wait(ctx, input, stackWaitTimeout)
	default:
		waiter := cloudformation.NewStackUpdateCompleteWaiter(c.client)
		err = waiter.Wait(ctx, input, stackWaitTimeout)
	}
	if err != nil {
		s.FinalMSG = fmt.Sprintf("✗ Stack %s %s failed\n", stackName, operation)
		return fmt.Errorf("stack %s %s did not complete: %w", stackName, operation, err)
	}

	s.FinalMSG = fmt.Sprintf("✓ Stack %s %s complete\n", stackName, operation)
	return nil
}
