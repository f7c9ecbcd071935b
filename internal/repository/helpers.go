package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// placeholderRow renders a two-column VALUES row starting at the given
// positional parameter index.
func placeholderRow(start int) string {
	return fmt.Sprintf("($%d, $%d)", start, start+1)
}
