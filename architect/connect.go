package architect

import (
	"context"
	"fmt"

	"github.com/ramoncreager/matrix/component"
	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/matrixerrors"
	"github.com/ramoncreager/matrix/transport"
)

// readEdges decodes connections.<mode> into a slice of Edge four-tuples.
func (a *Architect) readEdges(ctx context.Context, mode string) ([]Edge, error) {
	node, err := a.km.Get(ctx, tree.Path(PathConnections+"."+mode))
	if err != nil {
		return nil, matrixerrors.WrapFatal(err, "architect", "readEdges", "get connections."+mode)
	}
	raw, ok := node.Slice()
	if !ok {
		return nil, matrixerrors.WrapFatal(fmt.Errorf("connections.%s is not a list", mode), "architect", "readEdges", "decode")
	}

	edges := make([]Edge, 0, len(raw))
	for _, item := range raw {
		tuple, ok := item.([]any)
		if !ok || len(tuple) != 4 {
			return nil, matrixerrors.WrapFatal(fmt.Errorf("connections.%s entry is not a 4-tuple", mode), "architect", "readEdges", "decode")
		}
		fields := make([]string, 4)
		for i, v := range tuple {
			s, ok := v.(string)
			if !ok {
				return nil, matrixerrors.WrapFatal(fmt.Errorf("connections.%s entry has a non-string field", mode), "architect", "readEdges", "decode")
			}
			fields[i] = s
		}
		edges = append(edges, Edge{
			SrcComponent:  fields[0],
			SrcName:       fields[1],
			SinkComponent: fields[2],
			SinkName:      fields[3],
		})
	}
	return edges, nil
}

// sourceURL resolves the most local AsConfigured URL for one component's
// named transport, via transport.Prefer over what that component published
// after binding.
func (a *Architect) sourceURL(ctx context.Context, comp, name string) (string, error) {
	path := tree.Path(fmt.Sprintf("%s.%s.Transports.%s.AsConfigured", PathComponents, comp, name))
	node, err := a.km.Get(ctx, path)
	if err != nil {
		return "", matrixerrors.WrapFatal(err, "architect", "sourceURL", path.String())
	}
	raw, ok := node.Slice()
	if !ok {
		return "", matrixerrors.WrapFatal(fmt.Errorf("%s is not a list", path), "architect", "sourceURL", "decode")
	}
	urls := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return "", matrixerrors.WrapFatal(fmt.Errorf("%s entry is not a string", path), "architect", "sourceURL", "decode")
		}
		urls = append(urls, s)
	}
	best, err := transport.Prefer(urls)
	if err != nil {
		return "", matrixerrors.WrapFatal(err, "architect", "sourceURL", "prefer")
	}
	return best, nil
}

// Connect wires every edge declared under connections.<mode>: for each
// edge it resolves the source component's realized transport URL and hands
// it to the sink component's ConnectSource, so the sink can dial in on its
// own client transport. A sink component that does not implement
// component.Connectable is skipped — it has no input ports to wire.
func (a *Architect) Connect(ctx context.Context, mode string) error {
	edges, err := a.readEdges(ctx, mode)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		url, err := a.sourceURL(ctx, edge.SrcComponent, edge.SrcName)
		if err != nil {
			return err
		}

		a.mu.Lock()
		sink := a.managed[edge.SinkComponent]
		a.mu.Unlock()
		if sink == nil {
			return matrixerrors.WrapFatal(fmt.Errorf("sink component %q not found", edge.SinkComponent), "architect", "Connect", "lookup")
		}

		connectable, ok := component.AsConnectable(sink.Component)
		if !ok {
			a.log.Warn("sink component has no input ports to connect", "component", edge.SinkComponent, "port", edge.SinkName)
			continue
		}
		if err := connectable.ConnectSource(edge.SinkName, url); err != nil {
			return matrixerrors.WrapFatal(err, "architect", "Connect", fmt.Sprintf("%s.%s", edge.SinkComponent, edge.SinkName))
		}
	}
	return nil
}
