// Package preflight provides readiness checks for the directories, model
// gateway, and knowledge-base endpoints terport depends on.
//
// These checks back the CLI "terport check" command and the daemon's
// startup log. Every model in the hierarchy is probed on its own so an
// operator can see which fallback entries are usable.
package preflight
