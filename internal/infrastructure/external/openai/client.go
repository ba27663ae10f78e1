package openai

import (
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// NewClient builds the OpenAI client used by the document intelligence
// pipelines. The HTTP-level timeout is a hard ceiling under the
// per-call context deadlines the pipelines apply.
func NewClient(apiKey string, timeout time.Duration) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(cfg)
}
