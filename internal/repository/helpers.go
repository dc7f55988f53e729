package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound maps sql.ErrNoRows to (nil, nil) so Find* methods can
// report a missing consultation, meeting or user without an error:
//
//	var c model.Consultation
//	err := r.db.GetContext(ctx, &c, query, id)
//	return HandleNotFound(&c, err)
func HandleNotFound[T any](row *T, err error) (*T, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return row, nil
}
