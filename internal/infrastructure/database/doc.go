// Package database provides the SQLite connection and migration runner
// backing the automation rule store.
//
// SQLite runs in WAL mode with a single writer connection, which matches
// the rule store's access pattern: the trigger engine reads rules and
// writes last-executed timestamps; the external rule-management boundary
// performs occasional CRUD.
//
// Migrations are embedded SQL files registered by the migrations package
// and applied in version order, each in its own transaction.
package database
