// Package identity resolves the bearer token sent to the tool gateway.
//
// The Resolver walks an ordered chain: the validated inbound token in local
// mode, the process-wide cache, the .cognito-token.json file, and finally an
// OAuth2 client-credentials exchange against the Cognito token endpoint.
package identity
