// Package artifact contains concrete implementations of core.ArtifactStore.
//
// The interface lives in the core package so agents and tools depend on the
// contract, not a backend. This package provides the in-memory store used in
// tests and single-process setups; the s3 subpackage persists artifacts
// (generated reports, exported statements) to an S3 bucket.
package artifact
