// Package database provides the PostgreSQL connection pool used by the
// version journal, and the journal's schema.
package database
