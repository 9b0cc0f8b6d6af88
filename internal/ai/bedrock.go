package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	defaultBedrockModel = "anthropic.claude-3-haiku-20240307-v1:0"
	anthropicVersion    = "bedrock-2023-05-31"
	defaultMaxTokens    = 1024
)

// modelInvoker is the subset of the Bedrock runtime client the provider
// uses.
type modelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// bedrockProvider calls Anthropic models on AWS Bedrock through InvokeModel
// with the Messages API body format.
type bedrockProvider struct {
	client       modelInvoker
	defaultModel string
}

func newBedrockProvider(ctx context.Context, cfg ProviderConfig) (*bedrockProvider, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("ai/bedrock: load aws config: %w", err)
	}
	return &bedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: resolveModel(cfg.Model, defaultBedrockModel),
	}, nil
}

func (b *bedrockProvider) Name() string { return string(ProviderBedrock) }

func (b *bedrockProvider) Close() error { return nil }

// ---------------------------------------------------------------------------
// Messages API body
// ---------------------------------------------------------------------------

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature,omitempty"`
	TopP             float64            `json:"top_p,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

// anthropicStreamEvent is one chunk of InvokeModelWithResponseStream.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

// buildRequest folds system turns into the top-level system field.
func buildRequest(messages []Message, opts GenerateOptions) anthropicRequest {
	req := anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        opts.MaxTokens,
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		StopSequences:    opts.StopWords,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}

	var system []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{
			Role:    string(m.Role),
			Content: []anthropicContent{{Type: "text", Text: m.Content}},
		})
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

// ---------------------------------------------------------------------------
// Generate / StreamGenerate
// ---------------------------------------------------------------------------

// Generate implements Provider.
func (b *bedrockProvider) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Message, error) {
	body, err := json.Marshal(buildRequest(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("ai/bedrock: marshal request: %w", err)
	}
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(resolveModel(opts.Model, b.defaultModel)),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("ai/bedrock: invoke model: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("ai/bedrock: unmarshal response: %w", err)
	}
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return &Message{Role: RoleAssistant, Content: text.String()}, nil
}

// StreamGenerate implements Provider.
func (b *bedrockProvider) StreamGenerate(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamDelta, error) {
	body, err := json.Marshal(buildRequest(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("ai/bedrock: marshal stream request: %w", err)
	}
	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(resolveModel(opts.Model, b.defaultModel)),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("ai/bedrock: invoke model stream: %w", err)
	}

	ch := make(chan StreamDelta, 64)
	go func() {
		defer close(ch)
		stream := out.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			d, ok := parseStreamChunk(chunk.Value.Bytes)
			if !ok {
				continue
			}
			ch <- d
			if d.Done {
				return
			}
		}
		if err := stream.Err(); err != nil {
			slog.Warn("bedrock stream ended with error", "error", err)
			ch <- StreamDelta{Done: true, Err: fmt.Errorf("ai/bedrock: stream: %w", err)}
			return
		}
		ch <- StreamDelta{Done: true}
	}()
	return ch, nil
}

// parseStreamChunk turns one Messages API stream event into a delta. Events
// that carry neither text nor completion are skipped.
func parseStreamChunk(data []byte) (StreamDelta, bool) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamDelta{}, false
	}
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Text == "" {
			return StreamDelta{}, false
		}
		return StreamDelta{Content: ev.Delta.Text}, true
	case "message_delta":
		if ev.Delta.StopReason == "" {
			return StreamDelta{}, false
		}
		return StreamDelta{Done: true, StopReason: ev.Delta.StopReason}, true
	case "message_stop":
		return StreamDelta{Done: true}, true
	}
	return StreamDelta{}, false
}
