// Package metric provides Prometheus-based metrics collection and an HTTP
// server for Matrix process observability.
//
// A single Registry is shared by the Keymaster server, every transport
// instance, and every Component hosted in the process, so one /metrics
// endpoint covers the whole process. Core metrics (component lifecycle
// state, Keymaster RPC counts/latency, transport publish/drop counts,
// classified-error counts) are registered automatically; components and
// transports can additionally register their own counters, gauges, and
// histograms through the Registrar interface.
//
// # Basic usage
//
//	registry := metric.NewRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go server.Start()
//	defer server.Stop()
//
//	core := registry.CoreMetrics()
//	core.RecordComponentState("udp-input", 2) // Running
//	core.RecordKeymasterRPC("GET", nil, 3*time.Millisecond)
//
// All core metrics use the "matrix" namespace, e.g.
// matrix_keymaster_rpc_total, matrix_component_state,
// matrix_transport_drop_total.
package metric
