// Package store defines the persistence contracts the processing core depends
// on. The interfaces keep task and result storage behind a narrow read/write
// boundary so the state machine never sees database details.
package store
