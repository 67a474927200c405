package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
)

type Options struct {
	Timeout            time.Duration
	Temperature        *float64
	NumCtx             int
	ResilienceExecutor *resilience.Executor
}

// Client calls the Ollama generate endpoint. It implements the pipeline's Generator port.
type Client struct {
	baseURL    string
	genModel   string
	options    Options
	httpClient httpDoer
	executor   *resilience.Executor
}

func New(baseURL, genModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		options:    options,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, "")
}

// GenerateJSON asks for JSON output and trims anything the model wrapped around the
// outermost object, such as markdown fences.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	raw, err := c.generate(ctx, prompt, "json")
	if err != nil {
		return "", err
	}
	return extractJSONObject(raw), nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Client) generate(ctx context.Context, prompt, format string) (string, error) {
	req := generateRequest{
		Model:   c.genModel,
		Prompt:  prompt,
		Stream:  false,
		Format:  format,
		Options: c.modelOptions(),
	}

	var response generateResponse
	call := func(ctx context.Context) error {
		response = generateResponse{}
		return c.post(ctx, "/api/generate", req, &response)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.generate", call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", resilience.TemporaryIfRetryable("ollama generate", err, resilience.ClassifyHTTPError)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) modelOptions() map[string]any {
	opts := map[string]any{}
	if c.options.Temperature != nil {
		opts["temperature"] = *c.options.Temperature
	}
	if c.options.NumCtx > 0 {
		opts["num_ctx"] = c.options.NumCtx
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func extractJSONObject(raw string) string {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return raw
	}
	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(raw, closer)
	if end > start {
		return raw[start : end+1]
	}
	return raw
}
