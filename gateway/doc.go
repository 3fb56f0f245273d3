// Package gateway manages the connection to the remote MCP tool gateway.
//
// The MCP client is built once per process, while every invocation opens its
// own Session, bound to one bearer token and closed when the invocation ends.
package gateway
