package emulator

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDocumentNotFound is returned by GetDocument and DeleteDocument.
var ErrDocumentNotFound = errors.New("document not found")

// UpsertDocument stores doc in partition, replacing any document with the
// same id. A document without an "id" gets a generated one. The id is
// returned.
func (e *Emulator) UpsertDocument(ctx context.Context, partition string, doc json.RawMessage) (string, error) {
	id, body, err := e.prepareDocument(partition, doc)
	if err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}
	if err := upsert(ctx, e.db, partition, id, body); err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}
	return id, nil
}

// ImportDocuments upserts docs into partition in one transaction and returns
// the number stored. Either every document is stored or none is.
func (e *Emulator) ImportDocuments(ctx context.Context, partition string, docs []json.RawMessage) (int, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("import documents: %w", err)
	}
	defer tx.Rollback()

	for i, doc := range docs {
		id, body, err := e.prepareDocument(partition, doc)
		if err != nil {
			return 0, fmt.Errorf("import documents: document %d: %w", i, err)
		}
		if err := upsert(ctx, tx, partition, id, body); err != nil {
			return 0, fmt.Errorf("import documents: document %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("import documents: %w", err)
	}
	return len(docs), nil
}

// GetDocument returns the stored body of a document.
func (e *Emulator) GetDocument(ctx context.Context, partition, id string) (json.RawMessage, error) {
	var body string
	err := e.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE partition_key = ? AND id = ?`,
		partition, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get document %s/%s: %w", partition, id, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", partition, id, err)
	}
	return json.RawMessage(body), nil
}

// DeleteDocument removes a document.
func (e *Emulator) DeleteDocument(ctx context.Context, partition, id string) error {
	res, err := e.db.ExecContext(ctx,
		`DELETE FROM documents WHERE partition_key = ? AND id = ?`,
		partition, id,
	)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", partition, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", partition, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete document %s/%s: %w", partition, id, ErrDocumentNotFound)
	}
	return nil
}

// CountDocuments returns the number of documents in partition.
func (e *Emulator) CountDocuments(ctx context.Context, partition string) (int, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE partition_key = ?`,
		partition,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Partitions returns the partition keys that hold documents, sorted.
func (e *Emulator) Partitions(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT DISTINCT partition_key FROM documents ORDER BY partition_key COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("list partitions: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	return keys, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, partition, id string, body []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO documents (partition_key, id, body)
		VALUES (?, ?, ?)
		ON CONFLICT(partition_key, id) DO UPDATE SET body = excluded.body
	`, partition, id, string(body))
	return err
}

// prepareDocument validates doc and returns its id and stored body.
func (e *Emulator) prepareDocument(partition string, doc json.RawMessage) (string, []byte, error) {
	if partition == "" {
		return "", nil, fmt.Errorf("partition key is required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return "", nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	if fields == nil {
		return "", nil, fmt.Errorf("document must be a JSON object, got null")
	}

	raw, ok := fields["id"]
	if !ok {
		id := e.documentIDs.Generate()
		fields["id"], _ = json.Marshal(id)
		body, err := json.Marshal(fields)
		if err != nil {
			return "", nil, err
		}
		return id, body, nil
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil || id == "" {
		return "", nil, fmt.Errorf("document id must be a non-empty string, got %s", raw)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return "", nil, err
	}
	return id, compact.Bytes(), nil
}
