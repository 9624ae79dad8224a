//go:build integration

// Package integration provides integration tests for the osio library.
//
// These tests require Docker: they spin up Localstack for the S3 backend
// and a registry:2 container for the OCI backend using testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
