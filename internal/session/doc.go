// Package session is the live session manager.
//
// A [Session] owns one [socket.Channel] and a single reducer goroutine. Inbound server events and local intents
// are decoded into tagged [Event] values and applied in arrival order:
//
//   - [Registry] is replaced wholesale by every analyses_list snapshot
//   - [Tracker] follows the active run: Idle, Requested, Streaming, then Completed or Failed
//   - [Dispatcher] validates intents locally before anything is sent
//   - [SelectView] derives the form, processing or results view from the resulting state
//
// Every transition to connected, including reconnects, triggers exactly one registry refresh. A start command is
// never resent.
package session
