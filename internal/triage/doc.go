// Package triage provides the business boundary for sift's sentiment triage.
// It defines the pure decision components (Classify, Build, Route), the Pipeline
// that sequences them with the archive write and queue send, the Service
// (event batches, outcome bookkeeping, notifications), the collaborator
// interfaces and the Store interface for recorded outcomes.
package triage
