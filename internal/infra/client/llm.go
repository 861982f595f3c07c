package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sertaodev/pnae-assistant-go/internal/domain"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"
	"github.com/sertaodev/pnae-assistant-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// LLMClient calls an OpenAI-compatible chat completions API.
// Any provider that speaks POST /v1/chat/completions works.
type LLMClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewLLMClient creates a new LLMClient. Concurrent calls to the provider are
// capped at cfg.MaxConcurrency.
func NewLLMClient(
	httpClient *http.Client,
	baseURL, apiKey, model string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LLMClient {
	return &LLMClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		metrics:    metrics,
		logger:     logger,
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends the prompt as a single user message and returns the
// model's reply text.
func (c *LLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "LLMClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_length", len(prompt)),
	)

	if err := c.bulkhead.Acquire(ctx); err != nil {
		c.metrics.IncrExternalError("llm")
		return "", &domain.ErrExternalService{Service: "llm", Err: err}
	}
	defer c.bulkhead.Release()

	var completion chatCompletionResponse

	_, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(chatCompletionRequest{
				Model: c.model,
				Messages: []chatMessage{
					{Role: "user", Content: prompt},
				},
				Temperature: 0.2,
			})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/chat/completions", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("llm API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&completion)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &completion, nil
	})

	if err != nil {
		c.metrics.IncrExternalError("llm")
		return "", &domain.ErrExternalService{Service: "llm", Err: err}
	}

	if len(completion.Choices) == 0 {
		c.metrics.IncrExternalError("llm")
		return "", &domain.ErrExternalService{Service: "llm", Err: fmt.Errorf("empty choices in completion")}
	}

	c.metrics.RecordTokens(completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	return completion.Choices[0].Message.Content, nil
}
