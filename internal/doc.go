// Package internal groups helpers private to tokenauth.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for login, federation and refresh
//   - metrics: lock-free counters and the issuance latency histogram
//
// Nothing here appears in the public API except through type aliases in the
// root package.
package internal
