package llms

import (
	"context"
)

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderBedrock is the AWS Bedrock provider.
	ProviderBedrock ProviderType = "BEDROCK"
)

// Model is an interface chat models implement.
type Model interface {
	// GetName returns the model identifier.
	GetName() string
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GenerateContent asks the model to generate content from a sequence of
	// messages. The response may contain tool calls that the caller is
	// expected to execute and feed back as RoleTool messages.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}
