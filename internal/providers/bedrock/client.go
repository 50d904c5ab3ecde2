package bedrock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"

	"bedrockchat/internal/metrics"
	"bedrockchat/internal/providers"
)

const contentTypeJSON = "application/json"

var (
	ErrClientInit = errors.New("bedrock client initialization failed")
	ErrUpstream   = errors.New("bedrock invocation failed")
)

type Config struct {
	// Invoker is used as-is when set; otherwise Factory builds one on first use.
	Invoker Invoker
	Factory InvokerFactory
	Options Options
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Client turns a prompt into a family-specific InvokeModel call. The
// runtime client is created at most once per Client, on first use; an
// initialization failure is remembered and returned on every later call.
type Client struct {
	factory InvokerFactory
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics

	initOnce sync.Once
	invoker  Invoker
	initErr  error
}

func New(cfg Config) *Client {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	c := &Client{
		factory: cfg.Factory,
		opts:    cfg.Options.withDefaults(),
		logger:  cfg.Logger,
		metrics: m,
	}
	if cfg.Invoker != nil {
		c.initOnce.Do(func() { c.invoker = cfg.Invoker })
	}
	return c
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	invoker, err := c.client(ctx)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	target := req.Target
	body, err := buildBody(target.Family, req.Prompt, c.opts)
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	start := time.Now()
	out, err := invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(target.ProviderID),
		Body:        body,
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
	})
	c.metrics.InvokeDuration.WithLabelValues(target.Family.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamFailures.WithLabelValues(target.Family.String()).Inc()
		return providers.ChatResponse{}, fmt.Errorf("%w: model %s: %w", ErrUpstream, target.ProviderID, err)
	}
	if out == nil {
		c.metrics.UpstreamFailures.WithLabelValues(target.Family.String()).Inc()
		return providers.ChatResponse{}, fmt.Errorf("%w: model %s: empty output", ErrUpstream, target.ProviderID)
	}

	resp := parseBody(target.Family, out.Body)
	if resp.Degraded() {
		c.metrics.ResponseAnomalies.WithLabelValues(target.Family.String()).Inc()
		c.logger.Warn().
			Str("model_id", target.ProviderID).
			Str("family", target.Family.String()).
			Str("anomaly", resp.Anomaly).
			Str("body_preview", preview(out.Body)).
			Msg("unexpected response shape")
	}
	return resp, nil
}

func (c *Client) client(ctx context.Context) (Invoker, error) {
	c.initOnce.Do(func() {
		if c.factory == nil {
			c.initErr = fmt.Errorf("%w: no invoker factory configured", ErrClientInit)
			return
		}
		// The client outlives the first caller's request.
		inv, err := c.factory(context.WithoutCancel(ctx))
		if err != nil {
			c.initErr = fmt.Errorf("%w: %w", ErrClientInit, err)
			c.logger.Error().Err(err).Msg("failed to initialize bedrock client")
			return
		}
		c.invoker = inv
		c.logger.Info().Msg("bedrock client initialized")
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	return c.invoker, nil
}
