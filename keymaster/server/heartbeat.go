package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
)

// runHeartbeat writes Keymaster.heartbeat = the current UTC UnixNano
// timestamp once a second. It goes through the state transport's RPC
// endpoint exactly like any other client would, never touching s.tree
// directly — the tree's single-writer rule holds even for the server's
// own housekeeping. Since the state handle already resolved to one
// realized endpoint at bind time, there is no further transport.Prefer
// choice to make here; Prefer matters to callers picking among several
// AsConfigured URLs, not to the server writing through its own listener.
func (s *Server) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.writeHeartbeat(ctx); err != nil {
				s.log.Warn("heartbeat write failed", "error", err)
			}
		}
	}
}

func (s *Server) writeHeartbeat(ctx context.Context) error {
	now := time.Now().UTC().UnixNano()
	data, err := wire.EncodeNode(tree.NewNode(now))
	if err != nil {
		return err
	}
	payload := wire.EncodeRequest(wire.Request{Cmd: wire.CmdPut, Path: pathHeartbeat, Value: data, Create: true})

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	respPayload, err := s.stateHandle.Client().Request(rctx, wire.Subject, payload)
	if err != nil {
		return matrixerrors.WrapTransient(err, "server", "writeHeartbeat", "request")
	}

	rep, err := wire.DecodeReply(respPayload)
	if err != nil {
		return err
	}
	if !rep.Result {
		return matrixerrors.WrapTransient(fmt.Errorf("%s", rep.Err), "server", "writeHeartbeat", "put")
	}
	return nil
}
