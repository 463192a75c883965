package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

const (
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	bedrockDefaultRegion    = "us-east-1"
	bedrockDefaultMaxTokens = 1024
)

// invoker is the subset of *bedrockruntime.Client used here.
type invoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient runs Anthropic models hosted on AWS Bedrock through InvokeModel.
// Credentials come from the default AWS chain.
type BedrockClient struct {
	api    invoker
	region string
	logger *zap.Logger
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	ID      string                `json:"id"`
	Content []bedrockContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockClient loads the default AWS config for region (AWS_REGION, then
// us-east-1 when empty). retryMax > 0 overrides the SDK retry attempts.
func NewBedrockClient(ctx context.Context, region string, retryMax int) (*BedrockClient, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = bedrockDefaultRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if retryMax > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(retryMax))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockClientWith(bedrockruntime.NewFromConfig(cfg), region), nil
}

func newBedrockClientWith(api invoker, region string) *BedrockClient {
	return &BedrockClient{api: api, region: region, logger: zap.NewNop()}
}

// WithLogger sets the logger used for call diagnostics.
func (b *BedrockClient) WithLogger(l *zap.Logger) *BedrockClient {
	if l != nil {
		b.logger = l.Named("bedrock")
	}
	return b
}

// Region returns the AWS region the client was built for.
func (b *BedrockClient) Region() string { return b.region }

// Generate maps the chat request onto the Anthropic messages body. System
// messages are joined into the top-level system prompt.
func (b *BedrockClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	body := bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = bedrockDefaultMaxTokens
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		body.Messages = append(body.Messages, bedrockMessage{
			Role:    m.Role,
			Content: []bedrockContentBlock{{Type: "text", Text: m.Content}},
		})
	}
	if len(body.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	body.System = strings.Join(system, "\n\n")

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}
	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	b.logger.Debug("invoke model",
		zap.String("model", req.Model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	return &GenerateResponse{
		ID:      resp.ID,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: text.String()}}},
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		RequestID: requestID,
	}, nil
}

// classifyBedrockError maps modeled Bedrock exceptions onto the package's typed errors.
func classifyBedrockError(err error) error {
	var modeled interface {
		ErrorCode() string
		ErrorMessage() string
	}
	if !errors.As(err, &modeled) {
		return fmt.Errorf("bedrock invoke: %w", err)
	}
	apiErr := &APIError{Code: modeled.ErrorCode(), Message: modeled.ErrorMessage()}
	switch modeled.ErrorCode() {
	case "AccessDeniedException", "UnrecognizedClientException":
		apiErr.StatusCode = 403
		return &AuthError{APIError: apiErr}
	case "ThrottlingException":
		apiErr.StatusCode = 429
		return &RateLimitError{APIError: apiErr}
	case "ResourceNotFoundException":
		apiErr.StatusCode = 404
		return &ModelNotFoundError{APIError: apiErr}
	case "ValidationException":
		apiErr.StatusCode = 400
		return &BadRequestError{APIError: apiErr}
	case "ServiceQuotaExceededException":
		apiErr.StatusCode = 429
		return &QuotaExceededError{APIError: apiErr}
	case "InternalServerException", "ModelTimeoutException", "ServiceUnavailableException", "ModelNotReadyException":
		apiErr.StatusCode = 500
		return &ServerError{APIError: apiErr}
	}
	return fmt.Errorf("bedrock invoke: %w", err)
}
