// Package knxip implements a KNXnet/IP Tunnelling client.
//
// It speaks the KNXnet/IP Tunnelling protocol to a KNX-IP gateway over UDP,
// letting applications read, write, and observe group-addressed telegrams on
// a KNX field bus.
//
// # Architecture
//
// Three subsystems do the hard work:
//
//	┌─────────────┐  group_read/write  ┌──────────┐  UDP  ┌─────────────┐
//	│ Application │ ──────────────────► │  Tunnel  │ ─────► │ KNX-IP      │
//	│             │ ◄────listeners───── │ (session)│ ◄───── │ gateway     │
//	└─────────────┘                    └──────────┘        └─────────────┘
//
//   - Frame codec (frame.go, cemi.go, hpai.go): bidirectional serialisation
//     of KNXnet/IP frames and the embedded cEMI telegrams.
//   - Tunnel session (tunnel.go): connection lifecycle, sequence numbering,
//     acknowledgement with retransmit, heartbeat, and dispatch to waiters
//     and listeners.
//   - Gateway discovery (discovery.go): a timed multicast search, also run
//     automatically by Connect when the configured gateway is "0.0.0.0".
//
// # Group Addresses
//
// This package parses the single-integer, 2-level ("M/S"), and 3-level
// ("M/M/S") group address string forms. See ParseGroupAddress.
//
// # Thread Safety
//
// Tunnel, MemCache, and the listener registry are safe for concurrent use
// from multiple goroutines.
package knxip
