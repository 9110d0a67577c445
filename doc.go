// Package portal implements the session layer of the Sciqus LMS web portal.
//
// The portal is a server-rendered front end that talks to the LMS REST
// backend on behalf of browsers. Each browser is identified by a long lived
// client cookie; the client id names a durable key-value namespace where the
// credential record (bearer token plus JSON user) is persisted.
//
// Session lifecycle:
//   - Manager restores a client's record on first sight (Hydrate), trusting
//     it only tentatively (Unverified) until the backend confirms it through
//     the "who am I" call (Verify). A confirmed session is Verified.
//   - Any failure to confirm, an inactive account or a 401 from any backend
//     call destroys the session and clears the persisted record (fail closed).
//   - Login persists token and user together, Logout always clears them even
//     when the backend cannot be reached.
//   - Results from verifications that started before a later login or logout
//     are discarded.
//
// Route guarding:
//   - Guard.Evaluate is a pure function from a session Snapshot and a
//     RouteRule to an Outcome (allow, redirect to login, redirect to
//     unauthorized, blocked).
//   - RouteGuard exposes the decision as go-router middleware and remembers
//     the rejected path so login can return the user to it.
//
// Storage:
//   - Storage is the namespace/key/value contract. MemoryStorage ships in
//     this package; SQL (bun) and Redis implementations live in the
//     repository and redisstore packages.
package portal
