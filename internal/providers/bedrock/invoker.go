package bedrock

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Invoker is the slice of the Bedrock runtime API the gateway calls.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// InvokerFactory builds the runtime client on first use.
type InvokerFactory func(ctx context.Context) (Invoker, error)

// RuntimeFactory returns a factory that resolves credentials through the
// default AWS chain (env, shared config, IAM role), optionally pinned to a
// shared-config profile.
func RuntimeFactory(region, profile string) InvokerFactory {
	return func(ctx context.Context) (Invoker, error) {
		client, err := NewRuntimeInvoker(ctx, region, profile)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func NewRuntimeInvoker(ctx context.Context, region, profile string) (*bedrockruntime.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if r := strings.TrimSpace(region); r != "" {
		opts = append(opts, awsconfig.WithRegion(r))
	}
	if p := strings.TrimSpace(profile); p != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(p))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is not configured")
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}
