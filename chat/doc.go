// Package chat owns the live connection side of the client: one Session per
// joined channel speaking IRC over a WebSocket, a Registry enforcing the
// one-session-per-channel invariant, and the live-status reconciler that
// opens and closes sessions as tracked channels go live and offline.
//
// A Session is the concurrency unit. Its read loop runs in its own goroutine;
// inbound lines are parsed by the irc package and dispatched in order: PONG
// replies first, then the automation hook, then the Renderer. Sessions never
// reconnect on their own; a dropped connection is simply reported closed and
// the next reconciler cycle reopens it if the channel is still tracked and
// live.
//
// Credentials: sessions authenticate with a user OAuth token carrying
// chat:read/chat:edit scopes. Fatal auth NOTICEs terminate the session
// without retry and are surfaced to the caller.
package chat
