// Package auth is the identity provider: account sign-up and sign-in with
// bcrypt password hashes, and HMAC-signed JWT session tokens.
package auth
