// Package transport provides Matrix's pluggable pub/sub and request/reply
// fabric. A URL scheme selects which Factory handles a Bind or Connect
// call:
//
//	tcp://host:port    embedded NATS listener, dialed with nats.go
//	ipc://path          same embedded listener, restricted to loopback
//	inproc://name        in-process, lossy (drop-oldest on overflow)
//	rtinproc://name      in-process, lossless (semaphore-gated worker pool)
//
// # Registry
//
// Registry.RegisterFactory adds a scheme; NewDefaultRegistry returns one
// with the four built-ins already registered. Registry.Get shares one
// bound Server/Client pair across every caller that asks for the same
// (component, transport name) pair, refcounting releases through Handle
// so the underlying listener is torn down only once the last caller lets
// go.
//
// # Most-local selection
//
// Prefer ranks a list of configured URLs by locality — inproc/rtinproc
// ahead of ipc ahead of tcp — and returns the best match, letting two
// components on the same host (or in the same process) skip the network
// stack entirely when a URL for a more local scheme is available.
package transport
