// Package jwtauth validates inbound bearer tokens when the runtime runs
// outside of the managed environment.
//
// Tokens must be RS256 JWTs signed by a key from the JWKS advertised in the
// OpenID discovery document, and carry an allowed client_id claim.
package jwtauth
