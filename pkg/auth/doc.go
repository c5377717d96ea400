// Package auth provides pluggable authentication for the codechat server.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default decides when
// all authenticators abstain.
//
// Auth is implemented as HTTP middleware. On success it stores the identity
// in the request context and scopes the execution audit trail to the
// caller's tenant.
package auth
