// Package postgres implements the internal/store persistence contracts over
// PostgreSQL. It owns query execution, transaction composition via WithTx,
// and mapping between domain entities, database rows, and driver errors.
package postgres
