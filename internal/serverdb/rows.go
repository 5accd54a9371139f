package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/marcus/rxsync/internal/remote"
)

// InsertResult is the outcome of an idempotent insert.
type InsertResult struct {
	Key     int64
	Created bool
}

// Insert writes a header row and its children in one transaction. A row whose
// client_id already exists is left untouched and its key returned.
func (db *ServerDB) Insert(ctx context.Context, table string, row remote.Row, children *remote.Children) (InsertResult, error) {
	child, err := db.checkWrite(table, row, children)
	if err != nil {
		return InsertResult{}, err
	}
	clientID, _ := row["client_id"].(string)
	if clientID == "" {
		return InsertResult{}, ErrMissingClient
	}

	var res InsertResult
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		cols, args := sortedColumns(row)
		q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(client_id) DO NOTHING`,
			table, strings.Join(cols, ", "), placeholders(len(cols)))
		r, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return classifyErr(err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE client_id = ?`, table), clientID).Scan(&res.Key); err != nil {
				return fmt.Errorf("read existing key: %w", err)
			}
			return nil
		}
		if res.Key, err = r.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		res.Created = true
		if child != nil && children != nil {
			return insertChildren(ctx, tx, child, res.Key, children.Rows)
		}
		return nil
	})
	return res, err
}

// Update applies a partial row. When children is set the item list is
// replaced as a whole. A missing row is ErrNotFound.
func (db *ServerDB) Update(ctx context.Context, table string, key int64, row remote.Row, children *remote.Children) error {
	child, err := db.checkWrite(table, row, children)
	if err != nil {
		return err
	}
	delete(row, "client_id")

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), key).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s/%d", ErrNotFound, table, key)
		}
		if err != nil {
			return err
		}

		if len(row) > 0 {
			cols, args := sortedColumns(row)
			sets := make([]string, len(cols))
			for i, c := range cols {
				sets[i] = c + " = ?"
			}
			args = append(args, key)
			q := fmt.Sprintf(`UPDATE %s SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, table, strings.Join(sets, ", "))
			if _, err := tx.ExecContext(ctx, q, args...); err != nil {
				return classifyErr(err)
			}
		}

		if child != nil && children != nil {
			q := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, child.Table, child.ForeignKey)
			if _, err := tx.ExecContext(ctx, q, key); err != nil {
				return classifyErr(err)
			}
			return insertChildren(ctx, tx, child, key, children.Rows)
		}
		return nil
	})
}

// Delete removes a row; item rows go with it.
func (db *ServerDB) Delete(ctx context.Context, table string, key int64) error {
	if !db.HasTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	r, err := db.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), key)
	if err != nil {
		return classifyErr(err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%d", ErrNotFound, table, key)
	}
	return nil
}

// Lookup returns the key of the row with the given client_id.
func (db *ServerDB) Lookup(ctx context.Context, table, clientID string) (int64, error) {
	if !db.HasTable(table) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var key int64
	err := db.conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE client_id = ?`, table), clientID).Scan(&key)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s client=%s", ErrNotFound, table, clientID)
	}
	return key, err
}

// Get returns a row and, for composite tables, its items ordered by position.
func (db *ServerDB) Get(ctx context.Context, table string, key int64) (remote.Row, *remote.Children, error) {
	child, ok := headerTables[table]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s WHERE id = ?`, table), key)
	if err != nil {
		return nil, nil, err
	}
	found, err := scanRows(rows)
	if err != nil {
		return nil, nil, err
	}
	if len(found) == 0 {
		return nil, nil, fmt.Errorf("%w: %s/%d", ErrNotFound, table, key)
	}
	if child == nil {
		return found[0], nil, nil
	}

	rows, err = db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s WHERE %s = ? ORDER BY position, id`, child.Table, child.ForeignKey), key)
	if err != nil {
		return nil, nil, err
	}
	items, err := scanRows(rows)
	if err != nil {
		return nil, nil, err
	}
	return found[0], &remote.Children{Table: child.Table, ForeignKey: child.ForeignKey, Rows: items}, nil
}

// checkWrite validates the table, the columns of row and the children target.
func (db *ServerDB) checkWrite(table string, row remote.Row, children *remote.Children) (*childTable, error) {
	child, ok := headerTables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	delete(row, "id")
	if err := db.checkColumns(table, row); err != nil {
		return nil, err
	}
	if children == nil {
		return child, nil
	}
	if child == nil || children.Table != child.Table {
		return nil, fmt.Errorf("%w: %s -> %s", ErrChildrenTarget, table, children.Table)
	}
	for _, r := range children.Rows {
		delete(r, "id")
		delete(r, child.ForeignKey)
		if err := db.checkColumns(child.Table, r); err != nil {
			return nil, err
		}
	}
	return child, nil
}

func (db *ServerDB) checkColumns(table string, row remote.Row) error {
	cols := db.columns[table]
	for c := range row {
		if !cols[c] {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, c)
		}
	}
	return nil
}

func insertChildren(ctx context.Context, tx *sql.Tx, child *childTable, parent int64, rows []remote.Row) error {
	for i, r := range rows {
		item := make(remote.Row, len(r)+2)
		for k, v := range r {
			item[k] = v
		}
		item[child.ForeignKey] = parent
		if _, ok := item["position"]; !ok {
			item["position"] = i
		}
		cols, args := sortedColumns(item)
		q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, child.Table, strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return classifyErr(err)
		}
	}
	return nil
}

func (db *ServerDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func sortedColumns(row remote.Row) ([]string, []any) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	return cols, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanRows(rows *sql.Rows) ([]remote.Row, error) {
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []remote.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(remote.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
