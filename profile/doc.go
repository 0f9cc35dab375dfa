// Package profile persists which modules got hot enough to be compiled.
//
// Entries are keyed by the hex sha256 of the module bytecode, so a profile
// recorded by one process lets the next one compile the same modules as
// soon as they are loaded instead of waiting for them to warm up again.
// The file format is msgpack with a schema version header.
package profile
