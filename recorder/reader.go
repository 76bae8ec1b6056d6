package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	"github.com/ikuo/appmap/event"
)

// Session is a stored tracer.
type Session struct {
	ID      string
	Name    string
	Started int64
}

// Reader reads what a Recorder stored.
type Reader struct {
	db *sql.DB
}

// NewReader opens the database file at path.
func NewReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a Reader on an open database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Sessions lists the stored sessions in the order they started.
func (r *Reader) Sessions(ctx context.Context) ([]Session, error) {
	var rows []sessionRow

	err := r.query(ctx, &rows, sessionTable, "", "Started")
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, len(rows))
	for i, row := range rows {
		sessions[i] = Session{ID: row.Session, Name: row.Name, Started: row.Started}
	}

	return sessions, nil
}

// Events returns the events of session in id order.
func (r *Reader) Events(ctx context.Context, session string) ([]event.Event, error) {
	var rows []eventRow

	err := r.query(ctx, &rows, eventTable, "Session = ?", "ID", session)
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEvent()
		if err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	return events, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// query scans the rows of tableName into dst, a pointer to a slice of row
// structs.
func (r *Reader) query(
	ctx context.Context,
	dst any,
	tableName, where, orderBy string,
	args ...any,
) error {
	slice := reflect.ValueOf(dst).Elem()
	rowType := slice.Type().Elem()
	columns := structs.Names(reflect.New(rowType).Elem().Interface())

	query := "SELECT " + strings.Join(columns, ", ") + " FROM " + tableName
	if where != "" {
		query += " WHERE " + where
	}

	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		row := reflect.New(rowType).Elem()

		targets := make([]any, row.NumField())
		for i := range targets {
			targets[i] = row.Field(i).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return fmt.Errorf("scan %s: %w", tableName, err)
		}

		slice.Set(reflect.Append(slice, row))
	}

	return rows.Err()
}
