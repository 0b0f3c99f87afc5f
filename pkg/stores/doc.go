// Package stores persists the fault journal: install runs and the
// handled errors recorded during them.
//
// The journal is a local SQLite database (pure-Go driver, WAL mode)
// whose schema is managed with embedded golang-migrate migrations. It
// exists for post-run reporting — the `setforge history` command reads
// it — and is strictly an observer: the recovery core never depends on
// it and an unavailable journal never fails an install.
package stores
