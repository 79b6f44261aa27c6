// Package socket implements the live event channel to the analysis backend.
//
// The backend speaks Socket.IO (protocol v5 over Engine.IO v4). Only the WebSocket transport and the default
// namespace are supported. Packet framing lives in protocol.go; [Channel] owns one connection at a time and
// redials under a single [ReconnectPolicy] when it drops.
package socket
