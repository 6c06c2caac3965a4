// Package client implements the Keymaster client: a mutex-serialized RPC
// connection for GET/PUT/DEL/ping, a subscribe worker that dispatches
// publications to per-path callbacks, and a DeferredPutter that
// coalesces a fast producer's writes onto a slower Keymaster link.
package client
