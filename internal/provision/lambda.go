package provision

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"

	"github.com/qrioso-software/qriosdeploy/internal/util"
)

// directUploadLimit is the Lambda API ceiling for inline zip payloads.
// Larger archives must be staged through S3.
const directUploadLimit = 50 << 20

const codeUpdateWaitTimeout = 5 * time.Minute

// FunctionClient pushes packaged artifacts to Lambda functions, staging
// through S3 when a bucket is configured or the archive is too large for a
// direct upload.
type FunctionClient struct {
	client *lambda.Client
	s3     *s3.Client
	region string
	bucket string
	prefix string
}

// NewFunctionClient creates a Lambda client (and an S3 client for staging)
// for the given region.
func NewFunctionClient(ctx context.Context, region, bucket, prefix string) (*FunctionClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	return &FunctionClient{
		client: lambda.NewFromConfig(cfg),
		s3:     s3.NewFromConfig(cfg),
		region: region,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// UpdateCode pushes the artifact at artifactPath to the named function and
// waits for the update to settle. A missing function or a rejected upload
// is fatal to the caller; no retry is attempted.
func (c *FunctionClient) UpdateCode(ctx context.Context, functionName, artifactPath string) error {
	info, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("artifact %s not found: %w", artifactPath, err)
	}

	checksum, err := util.FileSHA256(artifactPath)
	if err != nil {
		return fmt.Errorf("error hashing artifact %s: %w", artifactPath, err)
	}
	log.Printf("📦 Uploading %s (%s, sha256 %.12s) to function %s",
		artifactPath, humanize.Bytes(uint64(info.Size())), checksum, functionName)

	if c.bucket != "" || info.Size() > directUploadLimit {
		if c.bucket == "" {
			return fmt.Errorf("artifact %s is %s, over the direct upload limit; configure upload.bucket for S3 staging",
				artifactPath, humanize.Bytes(uint64(info.Size())))
		}
		if err := c.updateViaS3(ctx, functionName, artifactPath); err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(artifactPath)
		if err != nil {
			return fmt.Errorf("error reading artifact %s: %w", artifactPath, err)
		}
		_, err = c.client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
			FunctionName: aws.String(functionName),
			ZipFile:      data,
		})
		if err != nil {
			return fmt.Errorf("error updating code for function %s: %w", functionName, err)
		}
	}

	waiter := lambda.NewFunctionUpdatedV2Waiter(c.client)
	err = waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(functionName)}, codeUpdateWaitTimeout)
	if err != nil {
		return fmt.Errorf("code update for function %s did not settle: %w", functionName, err)
	}

	log.Printf("✅ Function %s updated", functionName)
	return nil
}

func (c *FunctionClient) updateViaS3(ctx context.Context, functionName, artifactPath string) error {
	key := path.Join(c.prefix, filepath.Base(artifactPath))

	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("error opening artifact %s: %w", artifactPath, err)
	}
	defer f.Close()

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("error staging artifact to s3://%s/%s: %w", c.bucket, key, err)
	}

	_, err = c.client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(functionName),
		S3Bucket:     aws.String(c.bucket),
		S3Key:        aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error updating code for function %s from s3://%s/%s: %w", functionName, c.bucket, key, err)
	}
	return nil
}
