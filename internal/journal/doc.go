// Package journal persists every accepted game version to PostgreSQL.
//
// The journal is an append-only log: one row per transition the reconciler
// accepted, in acceptance order, tagged with where the version came from
// (snapshot, push, pull, poll). Rows are batched and written with COPY.
package journal
