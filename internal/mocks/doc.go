// Package mocks provides centralized mock implementations for testing.
//
// This package contains mock implementations of the storage and analysis
// interfaces used throughout the application, facilitating consistent and DRY
// testing across the codebase. Instead of defining inline mocks in individual
// test files, these standardized mock implementations can be reused.
//
// Each mock offers two levels of control:
//
//   - Function fields (CreateTaskFn, AnalyzeFn, ...) override individual
//     methods for a single test.
//   - A thread-safe in-memory default implementation backs everything else,
//     so most tests need no setup beyond the constructor.
package mocks
