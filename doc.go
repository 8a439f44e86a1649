// Package accounts provides a minimal user account service: registration with
// email verification, credential login issuing bearer JWTs, token refresh and
// revocation, and account removal in both hard (delete) and soft (hide)
// variants.
//
// Account lifecycle:
//   - Accounts are created unverified. A verification token is issued at
//     registration and consumed through a link-style endpoint; login is gated
//     on the verified flag.
//   - Hiding an account stamps hidden_at and prefixes a random salt onto the
//     identifying columns (uname, pnumber, email) so the record survives for
//     bookkeeping but can never authenticate or collide with a re-registration.
//   - AccountLifecycle centralizes the transition guards and activity emission
//     for both removal paths. Invoke Hide or Delete with ActorRef metadata.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     lifecycle to describe registration, verification, login, token, and
//     removal events. Sinks run best-effort (errors are logged) so you can
//     forward to a database or queue without blocking authentication.
package accounts
