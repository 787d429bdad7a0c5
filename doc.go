// Package axon is an asynchronous execution engine that drives transactional
// actors against a distributed key-value store. It provides the shared leaf
// types: the single-shot operation Future, the fixed-pool Scheduler, coded
// errors, and the collaborator contracts (Connection, Transaction, Actor)
// that store backends implement. The engine itself (transaction contexts and
// the executor) lives in the common subpackage, while concrete store backends
// live in subpackages such as inmemory, redis and cassandra.
// It is designed to be extensible, allowing various storage backends to be
// plugged in while sharing a common interface and a single retry protocol.
package axon
