/*
Package state models versioned resource state and its persisted layout.

A resource's history is a sequence of immutable VersionedState values; version
0 is the distinguished "does not exist yet" state. Mutation is copy-on-write:
MutatedCopy yields a deep copy at version+1, so earlier versions stay shared
safely across the resource graph.

The package also owns the durable key layout (big-endian numeric prefixes so
key order matches numeric order) and the JSON serialization of state payloads.
*/
package state
