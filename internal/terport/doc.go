// Package terport defines the shared data model of the generation pipeline.
//
// A terport is a generated long-form research document. The types here flow
// between the topic registry, the research aggregator, the synthesizer, the
// orchestrator and the persisted generation history; none of them perform I/O.
//
// # Lifecycle
//
// A GenerationRecord is created with StatusRunning when a run starts, updated
// in place while topics are processed, and becomes immutable once FinishedAt
// is set. VersionState is written only after a run reaches Completed or
// CompletedWithErrors.
package terport
