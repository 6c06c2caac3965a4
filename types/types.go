// Package types holds small shared value types passed between Matrix's
// major subsystems (config, keymaster, transport, architect) so none of
// them need to import each other just to describe a transport binding.
package types

// TransportSpec is how a transport is declared in the configuration
// document under Keymaster.URLS or components.<name>.Transports.<port>:
// Specified is what the operator wrote (may contain ephemeral "X+" runs
// or wildcard host/port markers); AsConfigured is filled in once a Bind
// call has realized the concrete URLs those markers resolved to.
type TransportSpec struct {
	Specified    []string `yaml:"Specified"`
	AsConfigured []string `yaml:"AsConfigured,omitempty"`
}
