package server

import (
	"context"
	"time"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/transport"
	"github.com/ramoncreager/matrix/types"
)

// runStateManager binds the state transport and services GET/PUT/DEL/ping
// requests against the tree until ctx is cancelled. Every RPC mutation runs
// in the callback this registers. The one other writer is Run, which puts
// the realized AsConfigured URLs into the tree once both transports have
// bound, while this callback may already be serving requests; tree.Tree's
// own lock serializes the two.
func (s *Server) runStateManager(ctx context.Context, spec types.TransportSpec) error {
	handle, err := s.transports.Get("Keymaster", "State", spec.Specified)
	if err != nil {
		return matrixerrors.WrapFatal(err, "server", "runStateManager", "bind")
	}
	s.stateHandle = handle

	token, err := handle.Client().Subscribe(wire.Subject, s.handleRequest)
	if err != nil {
		return matrixerrors.WrapFatal(err, "server", "runStateManager", "subscribe")
	}
	defer handle.Client().Unsubscribe(token)

	close(s.stateReady)

	<-ctx.Done()
	return handle.Release()
}

func (s *Server) handleRequest(_ string, payload []byte, reply transport.ReplyFunc) {
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: err.Error()}))
		return
	}

	start := time.Now()
	var reqErr error
	switch req.Cmd {
	case wire.CmdGet:
		reqErr = s.handleGet(req, reply)
	case wire.CmdPut:
		reqErr = s.handlePut(req, reply)
	case wire.CmdDel:
		reqErr = s.handleDel(req, reply)
	case wire.CmdPing:
		_ = reply(wire.EncodeReply(wire.Reply{Result: true}))
	default:
		// The source repeats this literal unterminated-quote message for
		// wire compatibility; it is not a typo.
		reqErr = matrixerrors.WrapInvalid(matrixerrors.ErrUnknownCommand, "server", "handleRequest", req.Cmd)
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: "Unknown request '" + req.Cmd}))
	}

	if s.metrics != nil {
		s.metrics.RecordKeymasterRPC(req.Cmd, reqErr, time.Since(start))
		if reqErr != nil {
			s.metrics.RecordError("keymaster-server", matrixerrors.Classify(reqErr).String())
		}
	}
}

func (s *Server) handleGet(req wire.Request, reply transport.ReplyFunc) error {
	node, err := s.tree.Get(tree.Path(req.Path))
	if err != nil {
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: err.Error()}))
		return err
	}
	data, err := wire.EncodeNode(node)
	if err != nil {
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: err.Error()}))
		return err
	}
	_ = reply(wire.EncodeReply(wire.Reply{Result: true, Node: data}))
	return nil
}

func (s *Server) handlePut(req wire.Request, reply transport.ReplyFunc) error {
	node, err := wire.DecodeNode(req.Value)
	if err != nil {
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: err.Error()}))
		return err
	}
	path := tree.Path(req.Path)
	if err := s.tree.Put(path, node.Raw(), req.Create); err != nil {
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: err.Error()}))
		return err
	}
	_ = reply(wire.EncodeReply(wire.Reply{Result: true}))

	for _, ancestor := range path.Ancestors() {
		s.enqueuePublication(ancestor)
	}
	if s.tree.DueForClone() {
		s.tree.SwapRoot(s.tree.Clone())
	}
	return nil
}

func (s *Server) handleDel(req wire.Request, reply transport.ReplyFunc) error {
	path := tree.Path(req.Path)
	if err := s.tree.Delete(path); err != nil {
		_ = reply(wire.EncodeReply(wire.Reply{Result: false, Err: err.Error()}))
		return err
	}
	_ = reply(wire.EncodeReply(wire.Reply{Result: true}))

	for _, ancestor := range path.Ancestors() {
		s.enqueuePublication(ancestor)
	}
	return nil
}
