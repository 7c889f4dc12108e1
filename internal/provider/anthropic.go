// Package provider adapts the Anthropic Messages API into the narrow
// gateway the orchestrator consumes. The gateway is stateless: each call
// carries the full transcript.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrUpstreamUnavailable covers network and provider-side failures.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrUpstreamProtocol covers responses the gateway cannot interpret.
var ErrUpstreamProtocol = errors.New("upstream protocol error")

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

const defaultMaxTokens = 1024

// Gateway wraps one Anthropic client and model choice.
type Gateway struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewGateway constructs a gateway with an explicit API key. A missing key is
// a configuration error so the orchestrator can never be built without a
// usable credential.
func NewGateway(apiKey string, model anthropic.Model) (*Gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key not configured")
	}
	if model == "" {
		model = DefaultModel
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Gateway{client: &c, model: model}, nil
}

// NewGatewayWithClient wires an existing client; used by tests to inject a
// fake transport.
func NewGatewayWithClient(client *anthropic.Client, model anthropic.Model) *Gateway {
	if model == "" {
		model = DefaultModel
	}
	return &Gateway{client: client, model: model}
}

// Complete sends one Messages request. Transport and provider errors map to
// ErrUpstreamUnavailable; an empty or role-less reply maps to
// ErrUpstreamProtocol. No retries here.
func (g *Gateway) Complete(ctx context.Context, system string, conv []anthropic.MessageParam, toolParams []anthropic.ToolUnionParam) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: int64(defaultMaxTokens),
		Messages:  conv,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if msg == nil || msg.Role == "" {
		return nil, fmt.Errorf("%w: empty response", ErrUpstreamProtocol)
	}
	return msg, nil
}
