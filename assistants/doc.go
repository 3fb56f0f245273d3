// Package assistants provides the agent loop: it sends the transcript to the
// model, dispatches the tool calls the model asks for, and appends every
// exchange to a transcript that callers can inspect after the call.
package assistants
