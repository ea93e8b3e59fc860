package providers

import "context"

// ModelCapabilities defines the specific capabilities of an AI model.
type ModelCapabilities struct {
	Name            string   `json:"name"`
	SupportedParams []string `json:"supported_params,omitempty"`
	Vision          bool     `json:"vision"`
}

// ImageInput is one inlined image sent to a vision model.
type ImageInput struct {
	Data     []byte
	MIMEType string
}

// DescribeOptions tunes a single describe call.
type DescribeOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// SynthesisParams are the output parameters for image synthesis.
type SynthesisParams struct {
	Width   int
	Height  int
	Quality string
	Model   string
}

// Message is one turn of a text conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextOptions tunes a text generation call.
type TextOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Describer turns one or more images plus an instruction into text.
type Describer interface {
	// Describe sends the prompt and the images, in order, and returns the
	// trimmed text of the first answer.
	Describe(ctx context.Context, images []ImageInput, prompt string, opts DescribeOptions) (string, error)
	// GetName returns the name of the provider (e.g., "openai").
	GetName() string
}

// Synthesizer turns a prompt into a hosted image URL.
type Synthesizer interface {
	SynthesizeImage(ctx context.Context, prompt string, params SynthesisParams) (string, error)
	GetName() string
}

// TextGenerator answers plain text conversations.
type TextGenerator interface {
	GenerateText(ctx context.Context, messages []Message, opts TextOptions) (string, error)
	GetName() string
	// GetModels returns the models offered by the provider.
	GetModels() []ModelCapabilities
}
