// Package schema manages the table-definition snapshot and creates tables
// from it on demand.
//
// The snapshot is three CSV files modelled on information_schema:
//   - structure: one row per column (type, nullability, key flag, comment)
//   - index: one row per index column, the primary key index named PRIMARY
//   - comment: one row per table
//
// [Puller] refreshes the files from a live database, [Bootstrap] writes them
// from the built-in table catalog, and [Manager] turns them into DDL.
package schema
