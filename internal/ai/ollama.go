package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaModel = "llama3"
	ollamaTimeout      = 120 * time.Second
)

// ollamaProvider calls a local Ollama server's /api/chat endpoint.
type ollamaProvider struct {
	baseURL      string
	httpClient   *http.Client
	defaultModel string
}

func newOllamaProvider(cfg ProviderConfig) *ollamaProvider {
	return &ollamaProvider{
		baseURL:      strings.TrimRight(cfg.OllamaURL, "/"),
		httpClient:   &http.Client{Timeout: ollamaTimeout},
		defaultModel: resolveModel(cfg.Model, defaultOllamaModel),
	}
}

func (o *ollamaProvider) Name() string { return string(ProviderOllama) }

func (o *ollamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
}

func (o *ollamaProvider) chatRequest(messages []Message, opts GenerateOptions, stream bool) ollamaChatRequest {
	return ollamaChatRequest{
		Model:    resolveModel(opts.Model, o.defaultModel),
		Messages: messages,
		Stream:   stream,
		Options: &ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.StopWords,
		},
	}
}

// post sends a chat request and returns the response body on 200.
func (o *ollamaProvider) post(ctx context.Context, reqBody ollamaChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	return resp.Body, nil
}

// Generate implements Provider.
func (o *ollamaProvider) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Message, error) {
	body, err := o.post(ctx, o.chatRequest(messages, opts, false))
	if err != nil {
		return nil, fmt.Errorf("ai/ollama: chat: %w", err)
	}
	defer body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("ai/ollama: decode chat: %w", err)
	}
	return &Message{Role: RoleAssistant, Content: resp.Message.Content}, nil
}

// StreamGenerate implements Provider. Ollama streams NDJSON chunks.
func (o *ollamaProvider) StreamGenerate(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamDelta, error) {
	body, err := o.post(ctx, o.chatRequest(messages, opts, true))
	if err != nil {
		return nil, fmt.Errorf("ai/ollama: stream: %w", err)
	}

	ch := make(chan StreamDelta, 64)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				ch <- StreamDelta{Done: true, Err: fmt.Errorf("ai/ollama: decode chunk: %w", err)}
				return
			}
			ch <- StreamDelta{Content: chunk.Message.Content, Done: chunk.Done, StopReason: chunk.DoneReason}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamDelta{Done: true, Err: fmt.Errorf("ai/ollama: read stream: %w", err)}
			return
		}
		ch <- StreamDelta{Done: true}
	}()
	return ch, nil
}
