package client

import (
	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/transport"
)

type delivery struct {
	path tree.Path
	node tree.Node
}

type subRequest struct {
	path   tree.Path
	cb     Callback
	token  transport.Token
	result chan error
}

type unsubRequest struct {
	path tree.Path
	done chan struct{}
}

// Subscribe registers cb to be invoked whenever path (or, for the root
// path, the reserved "Root" topic) is published. Subscribing the same
// path twice replaces the previous callback and its transport token.
func (c *Client) Subscribe(path tree.Path, cb Callback) error {
	token, err := c.conn.Subscribe(wire.Topic(path), func(_ string, payload []byte, _ transport.ReplyFunc) {
		node, err := wire.DecodeNode(payload)
		if err != nil {
			return
		}
		select {
		case c.deliverCh <- delivery{path: path, node: node}:
		case <-c.quit:
		}
	})
	if err != nil {
		return matrixerrors.WrapTransient(err, "client", "Subscribe", wire.Topic(path))
	}

	result := make(chan error, 1)
	select {
	case c.subCh <- subRequest{path: path, cb: cb, token: token, result: result}:
	case <-c.quit:
		return matrixerrors.ErrClosed
	}
	return <-result
}

// Unsubscribe cancels a subscription previously registered with
// Subscribe. Unsubscribing a path with no active subscription is a no-op.
func (c *Client) Unsubscribe(path tree.Path) {
	done := make(chan struct{})
	select {
	case c.unsubCh <- unsubRequest{path: path, done: done}:
		<-done
	case <-c.quit:
	}
}

// subscribeWorker owns the callback and token maps exclusively, so no
// locking is needed around them: every read and write happens on this one
// goroutine.
func (c *Client) subscribeWorker() {
	defer c.wg.Done()
	callbacks := make(map[tree.Path]Callback)
	tokens := make(map[tree.Path]transport.Token)

	for {
		select {
		case req := <-c.subCh:
			if old, exists := tokens[req.path]; exists {
				c.conn.Unsubscribe(old)
			}
			callbacks[req.path] = req.cb
			tokens[req.path] = req.token
			req.result <- nil

		case req := <-c.unsubCh:
			if token, exists := tokens[req.path]; exists {
				c.conn.Unsubscribe(token)
				delete(tokens, req.path)
				delete(callbacks, req.path)
			}
			close(req.done)

		case d := <-c.deliverCh:
			if cb, exists := callbacks[d.path]; exists {
				cb(d.path, d.node)
			}

		case <-c.quit:
			for _, token := range tokens {
				c.conn.Unsubscribe(token)
			}
			return
		}
	}
}
