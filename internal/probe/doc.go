// Package probe implements the application-layer collaborator the scan
// engine's dispatcher invokes against every open endpoint: a Minecraft
// Server List Ping handshake followed by a status request, yielding the
// server's MOTD, player counts, protocol version, and favicon.
//
// The wire format (handshake packet, VarInt length-prefixing, JSON
// status response) is fixed by the Minecraft protocol and is not
// configurable; Adapter exists mainly to plug a Store implementation
// (through its Recorder) in behind Prober.
package probe
