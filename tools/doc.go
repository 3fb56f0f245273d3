// Package tools defines the Tool interface the agent loop dispatches to.
// Remote gateway tools are adapted to it by the gateway package.
package tools
