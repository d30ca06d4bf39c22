package llm

import "context"

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting returned by the provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Response is the model output.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ThreadSystemPrompt frames the model as a crypto social media writer.
const ThreadSystemPrompt = "" +
	"You write crypto social media content for a KOL account. " +
	"Return only the tweets, one per paragraph, each prefixed with its number (1/n). " +
	"Never include financial advice disclaimers unless asked."
