// Package component defines the Component contract every Matrix pipeline
// stage implements: Discoverable for introspection, the Standby/Ready/
// Running lifecycle machine the Architect drives every component through,
// and the Registry that turns a components.<name>.type declaration into a
// running instance.
package component
