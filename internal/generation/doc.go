// Package generation runs the generation state machine for one trigger.
//
// A run moves from Deciding to Running(topic) to a terminal status. When the
// version gate says nothing is needed, Run returns a nil record and writes no
// history. Otherwise a Running record is created before any topic work and
// topics are processed strictly in registry order: research, synthesis, then
// document persistence. A topic that exhausts its model hierarchy or whose
// document write fails is recorded as failed and the run continues. Errors
// that mark the run itself as broken (an unreachable store, a failed version
// gate write, cancellation) end the run as Failed.
//
// The version gate advances only when the run ends Completed or
// CompletedWithErrors.
package generation
