// Package config loads Matrix's configuration document — the YAML file
// that becomes the Keymaster tree's initial contents. Loader validates the
// handful of top-level keys keymaster/server.Server and architect.Architect
// need at boot (Keymaster.URLS.Initial, components); everything else in
// the document, including component config subtrees and connection modes,
// flows into the tree verbatim and is read directly by keymaster/server.
package config
