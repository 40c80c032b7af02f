package emulator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/docagg/internal/docclient"
)

var _ docclient.Client = (*Emulator)(nil)

// entryPointPattern finds the first top-level function declaration. The
// host calls that function with the invocation arguments.
var entryPointPattern = regexp.MustCompile(`(?m)^function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)

// ProgramInfo describes a registered program.
type ProgramInfo struct {
	ID         string
	EntryPoint string
	Size       int // characters
}

// RegisterProgram stores source under id. An existing id is a conflict and
// leaves the stored program unchanged.
func (e *Emulator) RegisterProgram(ctx context.Context, id, source string) (docclient.RegisterOutcome, error) {
	if id == "" {
		return 0, &docclient.StatusError{Status: docclient.StatusBadRequest, Message: "program id is required"}
	}
	m := entryPointPattern.FindStringSubmatch(source)
	if m == nil {
		return 0, &docclient.StatusError{Status: docclient.StatusBadRequest, Message: "program declares no top-level function"}
	}

	_, err := e.db.ExecContext(ctx,
		`INSERT INTO programs (id, entry_point, body) VALUES (?, ?, ?)`,
		id, m[1], source,
	)
	if isConstraintError(err) {
		return docclient.RegisterConflict, nil
	}
	if err != nil {
		return 0, fmt.Errorf("register program %s: %w", id, err)
	}
	return docclient.Registered, nil
}

// DeleteProgram removes a program. It reports whether the program existed.
func (e *Emulator) DeleteProgram(ctx context.Context, id string) (bool, error) {
	res, err := e.db.ExecContext(ctx, `DELETE FROM programs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete program %s: %w", id, err)
	}
	e.programs.Remove(id)

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete program %s: %w", id, err)
	}
	return n > 0, nil
}

// ListPrograms returns the registered programs ordered by id.
func (e *Emulator) ListPrograms(ctx context.Context) ([]ProgramInfo, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, entry_point, length(body) FROM programs ORDER BY id COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	defer rows.Close()

	var out []ProgramInfo
	for rows.Next() {
		var p ProgramInfo
		if err := rows.Scan(&p.ID, &p.EntryPoint, &p.Size); err != nil {
			return nil, fmt.Errorf("list programs: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return out, nil
}

// loadProgram returns the source and entry point of a program, or ok=false.
func (e *Emulator) loadProgram(ctx context.Context, id string) (source, entry string, ok bool, err error) {
	err = e.db.QueryRowContext(ctx,
		`SELECT body, entry_point FROM programs WHERE id = ?`, id,
	).Scan(&source, &entry)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("load program %s: %w", id, err)
	}
	return source, entry, true, nil
}

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
