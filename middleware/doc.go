// Package middleware provides net/http middleware that admits requests
// carrying a valid access token.
//
// [Guard] reads an "Authorization: Bearer <token>" header, checks it with
// [tokenauth.Engine.ValidateAccess] and stores the verified claims in the
// request context. Refresh tokens are rejected. Every rejection is a bare
// 401 so callers cannot tell which check failed.
package middleware
