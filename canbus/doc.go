// Package canbus provides the CAN transport used by the BMS object-access
// client: a Frame type, a context-aware Bus interface and its implementations.
//
// It includes:
//   - A core Frame type with validation and binary marshaling helpers
//   - An in-memory loopback bus for tests and simulations
//   - A filter-based multiplexer for fanning one receiver out to many consumers
//   - Decorators that log (slog) or capture (pcap) the traffic of any Bus
//   - A Linux SocketCAN driver (linux-only) via raw syscalls
package canbus
