package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Option is an option for the Bedrock LLM.
type Option func(*options)

type options struct {
	modelID string
	region  string
	client  *bedrockruntime.Client
}

// WithModel sets the model or inference profile id.
func WithModel(modelID string) Option {
	return func(o *options) {
		if modelID != "" {
			o.modelID = modelID
		}
	}
}

// WithRegion sets the AWS region used when the client is created from the
// default configuration chain.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithClient allows passing a custom runtime client.
func WithClient(client *bedrockruntime.Client) Option {
	return func(o *options) {
		o.client = client
	}
}
