// Package architect implements the Architect: the process that ensures a
// Keymaster is reachable, instantiates the components a configuration
// document declares, wires them together for a named connection mode, and
// drives every component through the shared lifecycle machine in
// component.Transition.
package architect
