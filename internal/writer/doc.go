// Package writer persists vendor frames into PostgreSQL tables.
//
// Write modes:
//   - Append upserts rows on the table's primary key (INSERT ... ON CONFLICT
//     DO UPDATE) through pgx.Batch, counting inserts and updates.
//   - Replace deletes every row and bulk loads the frame with COPY.
//
// Each write runs in one transaction and is retried as a whole. Cells are
// coerced to the declared column kind first: text to null.String, integers
// to null.Int and numerics to decimal.NullDecimal. Unparseable numbers
// become NULL.
package writer
