// Package canopen implements the client side of CANopen expedited SDO
// object access on top of the canbus transport.
//
// It covers:
//   - Node ids and the SDO request/response COB-ids derived from them
//   - Object references (index, sub-index) and fixed-width integer encodings
//   - Expedited upload/download frame builders and parsers, for both the
//     client and a serving node
//   - A synchronous Client with Connect/Disconnect, Upload, Download and a
//     node discovery Scan
//
// Segmented and block transfers, PDOs and NMT are intentionally absent:
// every object handled here fits in a single 8-byte frame.
package canopen
