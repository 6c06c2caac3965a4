// Package server implements the Keymaster server: three goroutines
// coordinated by an errgroup.Group. stateManager owns the value tree
// exclusively and services GET/PUT/DEL/ping over a transport RPC
// endpoint; publisher drains a channel of tree mutations and republishes
// them by path on the pub-socket transport; heartbeat periodically writes
// a liveness timestamp into the tree it manages.
package server
