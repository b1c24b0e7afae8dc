// Package awsconfig builds the shared AWS SDK configuration for CloudWatch and S3 clients.
package awsconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Options - регион, необязательный endpoint (LocalStack) и статические ключи
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Load создает aws.Config. Без статических ключей используется стандартная цепочка провайдеров.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	if strings.TrimSpace(opts.Region) == "" {
		return aws.Config{}, fmt.Errorf("region is required")
	}

	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	if opts.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(opts.Endpoint)
	}

	return cfg, nil
}
