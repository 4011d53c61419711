// Package credentials provides session and credential management: account
// registration with email verification, password login, confirmed password
// changes and resets, opaque multi-device sessions, and per-user CSRF token
// pools.
//
// Storage model:
//   - The User aggregate embeds its sessions, CSRF tokens, and pending
//     one-time codes, persisted via Bun as one unit. Every save carries an
//     optimistic version check; concurrent writers retry the whole
//     read-mutate-save cycle through the managers.
//   - Secrets are never stored. Session tokens and one-time codes live only
//     as sha256 digests; a user_digests index table, rebuilt inside the
//     save transaction, resolves a digest back to its owner. Expiry is
//     always re-checked in memory against the exact matched record.
//
// Flows:
//   - Registration stages a 24h verification code and blocks login until it
//     is confirmed. A scheduled sweep deletes accounts whose code expired
//     unconfirmed.
//   - Password changes stage the replacement hash up front and only promote
//     it when the emailed code is consumed; both change and forgot flows
//     revoke every session in the same write.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     command handlers to describe registration, login, verification, and
//     password events. Sinks run best-effort (errors are logged) so you can
//     forward to a database or queue without blocking authentication.
package credentials
