package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedrockchat/internal/providers"
)

type fakeInvoker struct {
	mu    sync.Mutex
	calls []*bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body), ContentType: aws.String(contentTypeJSON)}, nil
}

func anthropicTarget() providers.Target {
	return providers.Target{
		Alias:      "claude-3.5-sonnet",
		ProviderID: "anthropic.claude-3-5-sonnet-20240620-v1:0",
		Family:     providers.FamilyAnthropic,
	}
}

func TestChatInvokesModelWithFamilyPayload(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"hi there"}]}`}
	c := New(Config{Invoker: inv, Logger: zerolog.Nop()})

	resp, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "hello", Target: anthropicTarget()})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.False(t, resp.Degraded())

	require.Len(t, inv.calls, 1)
	call := inv.calls[0]
	assert.Equal(t, "anthropic.claude-3-5-sonnet-20240620-v1:0", aws.ToString(call.ModelId))
	assert.Equal(t, "application/json", aws.ToString(call.ContentType))
	assert.Equal(t, "application/json", aws.ToString(call.Accept))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(call.Body, &payload))
	assert.Contains(t, payload, "messages")
}

func TestChatDegradedResponseIsNotAnError(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[]}`}
	c := New(Config{Invoker: inv, Logger: zerolog.Nop()})

	resp, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "hello", Target: anthropicTarget()})
	require.NoError(t, err)
	assert.True(t, resp.Degraded())
	assert.Equal(t, placeholderNoContent, resp.Text)
}

func TestChatTransportFailureIsUpstreamError(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("dial tcp: connection refused")}
	c := New(Config{Invoker: inv, Logger: zerolog.Nop()})

	_, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "hello", Target: anthropicTarget()})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClientInitFailureIsCached(t *testing.T) {
	var calls atomic.Int32
	c := New(Config{
		Factory: func(context.Context) (Invoker, error) {
			calls.Add(1)
			return nil, errors.New("no credentials")
		},
		Logger: zerolog.Nop(),
	})

	for i := 0; i < 3; i++ {
		_, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "hello", Target: anthropicTarget()})
		require.ErrorIs(t, err, ErrClientInit, "attempt %d", i)
	}
	assert.Equal(t, int32(1), calls.Load(), "factory calls")
}

func TestClientWithoutFactoryFailsInit(t *testing.T) {
	c := New(Config{Logger: zerolog.Nop()})
	_, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "hello", Target: anthropicTarget()})
	assert.ErrorIs(t, err, ErrClientInit)
}

func TestConcurrentFirstUseBuildsOneClient(t *testing.T) {
	var builds atomic.Int32
	inv := &fakeInvoker{body: `{"generation":"ok"}`}
	c := New(Config{
		Factory: func(context.Context) (Invoker, error) {
			builds.Add(1)
			return inv, nil
		},
		Logger: zerolog.Nop(),
	})

	target := providers.Target{ProviderID: "meta.llama3-8b-instruct-v1:0", Family: providers.FamilyLlama}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Chat(context.Background(), providers.ChatRequest{Prompt: "p", Target: target})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load(), "factory calls")
	assert.Len(t, inv.calls, 16)
}
