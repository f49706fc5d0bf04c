// Package token issues room tokens, either through the engine's native
// token generator or locally as EdDSA JWTs derived from the access key.
package token
