// Package session provides the client side session core of an application
// talking to a token based auth backend: token persistence, a cached
// profile, the boot sequence and the runtime auth operations.
//
// Lifecycle:
//   - Manager starts Uninitialized. Initialize restores the session from the
//     TokenStore, refreshing an expired access token and fetching the
//     profile. The outcome is Authenticated, Anonymous or DegradedCached and
//     Initialize never runs the sequence twice for the same Manager.
//   - A status 500 from the backend during boot falls back to the Cache. With
//     no cached profile the whole sequence is retried a bounded number of
//     times with a fixed delay before giving up.
//   - Any other boot failure is terminal and clears the stored session.
//
// Runtime:
//   - Login, Register, UpdateProfile and UpdatePassword return backend errors
//     untouched after emitting an error Notification, and leave the session
//     unchanged on failure.
//   - Logout never fails. Tokens, cached profile and user are cleared even
//     when the server side invalidation does not go through.
//   - SessionRequiredBus carries "session required" signals raised elsewhere
//     (for example a 401 from a protected call). A subscribed Manager clears
//     the session without calling the server.
//
// Activity sinks:
//   - ActivitySink receives an event for every lifecycle change. Sinks run
//     best-effort (errors are logged), see the metrics package for a
//     Prometheus backed sink.
package session
