package repository

import (
	"context"
	"iter"

	"github.com/jmoiron/sqlx"
)

// scanSeq runs query lazily each time the sequence is ranged over. A scan or
// query error is yielded once and ends the sequence.
func scanSeq[T any](ctx context.Context, db sqlx.QueryerContext, query string, args ...interface{}) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		rows, err := db.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(zero, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var item T
			if err := rows.StructScan(&item); err != nil {
				yield(zero, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, err)
		}
	}
}
