/*
Package types defines the contract between a host and the kiln runtime.

A host supplies transactions; each transaction declares, in order, the
resources it will read and write. These types are deliberately dependency-free
so hosts can implement them without pulling in the runtime's internals.
*/
package types
