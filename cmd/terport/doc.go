// Command terport is the operator CLI for the terport generation pipeline.
//
// Commands work directly against the local SQLite database and configuration:
// generate runs the pipeline in-process under the shared run lock, while
// status, history, topics, and documents are read-only views. check runs
// the preflight probes and run hosts the daemon in the foreground.
package main
