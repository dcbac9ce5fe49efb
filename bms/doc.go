// Package bms maps named battery parameters onto CANopen objects and reads
// them as physical values.
//
// A Registry is the ordered, immutable table of parameter definitions. A
// Reader uses it together with an object access client to read one named
// parameter, every parameter of a node, or to discover the nodes on a bus.
package bms
