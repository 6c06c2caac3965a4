// Package transport abstracts the pub/sub and request/reply fabric the
// Keymaster and its clients run over. A URL scheme selects a Factory:
// "tcp" and "ipc" bind an embedded NATS server and talk to it with
// nats.go; "inproc" and "rtinproc" never leave the process.
package transport

import "context"

// ReplyFunc sends a response back to whoever issued a Request that reached
// a subscriber. Calling it on a delivery that did not originate from
// Request is a no-op.
type ReplyFunc func(payload []byte) error

// Callback is invoked with the payload delivered for a subscribed key.
// reply is never nil: it answers the caller when the delivery originated
// from a Client.Request call, and is a no-op for ordinary publications.
type Callback func(key string, payload []byte, reply ReplyFunc)

// Token identifies an active subscription so it can be cancelled later.
type Token uint64

// Server is the bind side of a transport: it owns a listener (or, for the
// in-process schemes, the receiving half of a channel) and publishes
// frames under a key.
type Server interface {
	// Bind starts listening on urls. Bind is all-or-nothing: if any URL
	// fails, every URL already bound during this call is torn down before
	// Bind returns its error.
	Bind(urls []string) error

	// Publish sends payload under key to every current subscriber.
	Publish(key string, payload []byte) error

	// URL returns the realized URL Bind settled on (ephemeral ports and
	// generated names resolved), or "" if not yet bound.
	URL() string

	// Close releases the listener and any subscriptions.
	Close() error
}

// Client is the connect side of a transport.
type Client interface {
	// Connect establishes the client's link to a server bound at url.
	Connect(url string) error

	// Subscribe registers cb to be invoked for deliveries under key.
	// A trailing "*" in key matches any key sharing that prefix.
	Subscribe(key string, cb Callback) (Token, error)

	// Unsubscribe cancels a subscription previously returned by Subscribe.
	Unsubscribe(token Token)

	// Request performs a request/reply round trip: it publishes payload
	// under key and waits for exactly one reply, up to ctx's deadline.
	Request(ctx context.Context, key string, payload []byte) ([]byte, error)

	// Disconnect releases the client's link.
	Disconnect() error
}

// Factory constructs the server and client halves of one transport
// scheme. A Factory instance is stateless; all per-connection state lives
// in the Server/Client values it returns.
type Factory interface {
	// Scheme is the URL scheme this factory handles, e.g. "tcp".
	Scheme() string

	NewServer() (Server, error)
	NewClient() (Client, error)
}
