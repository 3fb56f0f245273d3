// Package llms defines the message, tool and model types shared by the
// agent loop and the model providers.
//
// The `llms.go` file contains the Model interface, `generatecontent.go` the
// transcript message types and `options.go` the per-call options.
package llms
