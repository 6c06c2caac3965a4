package server

import (
	"context"
	"net/url"

	"github.com/ramoncreager/matrix/keymaster/wire"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/transport"
	"github.com/ramoncreager/matrix/types"
)

// runPublisher binds the pub-socket transport and drains publishCh,
// republishing each (path, serialized value) pair under its own topic
// until ctx is cancelled.
func (s *Server) runPublisher(ctx context.Context, spec types.TransportSpec) error {
	handle, err := s.bindPubWithFallback(spec)
	if err != nil {
		return matrixerrors.WrapFatal(err, "server", "runPublisher", "bind")
	}
	s.pubHandle = handle

	close(s.pubReady)

	for {
		select {
		case pv := <-s.publishCh:
			if err := handle.Server().Publish(wire.Topic(pv.path), pv.data); err != nil {
				s.log.Warn("publish failed", "path", pv.path.String(), "error", err)
			}
		case <-ctx.Done():
			return handle.Release()
		}
	}
}

// bindPubWithFallback binds spec's URLs, retrying once with an ephemeral
// tcp/ipc port if the requested port is already in use. This implements
// the "retry-with-ephemeral fallback" the port-derivation collision case
// calls for: the derived pub port (state port + 1) may already be bound
// by something else.
func (s *Server) bindPubWithFallback(spec types.TransportSpec) (*transport.Handle, error) {
	handle, err := s.transports.Get("Keymaster", "Pub", spec.Specified)
	if err == nil {
		return handle, nil
	}
	if !matrixerrors.IsInvalid(err) {
		return nil, err
	}

	fallback := make([]string, len(spec.Specified))
	for i, raw := range spec.Specified {
		fallback[i] = ephemeralize(raw)
	}
	s.log.Warn("pub bind collision, retrying with an ephemeral port", "requested", spec.Specified, "fallback", fallback)
	return s.transports.Get("Keymaster", "Pub", fallback)
}

func ephemeralize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Scheme != "tcp" && u.Scheme != "ipc" {
		return raw
	}
	host := u.Hostname()
	if host == "" {
		host = "0.0.0.0"
	}
	u.Host = host + ":*"
	return u.String()
}
