package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metadata keys attached to every generated document.
const (
	MetaCategory          = "terport_category"
	MetaModel             = "terport_model"
	MetaRunID             = "terport_run_id"
	MetaTrigger           = "terport_trigger"
	MetaPluginVersion     = "terport_plugin_version"
	MetaFactsConsidered   = "terport_facts_considered"
	MetaGeneratedAt       = "terport_generated_at"
	MetaResearchQuestions = "terport_research_questions"
	MetaAttempts          = "terport_attempts"
	MetaHeadline          = "terport_headline"
)

// Document is a persisted terport with its metadata.
type Document struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta"`
}

// Category returns the document's category metadata.
func (d Document) Category() string {
	return d.Meta[MetaCategory]
}

// CreateDocument stores a document and its metadata atomically and returns
// the new document ID.
func (s *Store) CreateDocument(ctx context.Context, title, body string, meta map[string]string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, errors.New("create document: title is empty")
	}
	if strings.TrimSpace(body) == "" {
		return 0, errors.New("create document: body is empty")
	}

	keys := make([]string, 0, len(meta))
	for key := range meta {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	ctx = ensureContext(ctx)
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (title, body, created_at) VALUES (?, ?, ?)`,
			title, body, formatTime(time.Now()),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO document_meta (document_id, meta_key, meta_value) VALUES (?, ?, ?)`,
				id, strings.TrimSpace(key), meta[key],
			); err != nil {
				return fmt.Errorf("insert meta %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr("create document", err)
	}
	return id, nil
}

// DocumentCount returns the number of documents in category. An empty
// category counts every document.
func (s *Store) DocumentCount(ctx context.Context, category string) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrUnavailable
	}
	ctx = ensureContext(ctx)
	var (
		count int
		err   error
	)
	if strings.TrimSpace(category) == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM document_meta WHERE meta_key = ? AND meta_value = ?`,
			MetaCategory, strings.TrimSpace(category),
		).Scan(&count)
	}
	return count, wrapErr("count documents", err)
}

// GetDocument fetches a document with its metadata. It returns nil when absent.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	ctx = ensureContext(ctx)
	var (
		doc     Document
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, body, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.Body, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get document", err)
	}
	if t, perr := parseTimeString(created); perr == nil {
		doc.CreatedAt = t
	}
	meta, err := s.documentMeta(ctx, []int64{doc.ID})
	if err != nil {
		return nil, err
	}
	doc.Meta = meta[doc.ID]
	if doc.Meta == nil {
		doc.Meta = map[string]string{}
	}
	return &doc, nil
}

// ListDocuments returns documents newest first, optionally filtered by
// category. Bodies are included.
func (s *Store) ListDocuments(ctx context.Context, category string, limit int) ([]Document, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	ctx = ensureContext(ctx)
	query := `SELECT d.id, d.title, d.body, d.created_at FROM documents d`
	var args []any
	if c := strings.TrimSpace(category); c != "" {
		query += ` JOIN document_meta m ON m.document_id = d.id AND m.meta_key = ? AND m.meta_value = ?`
		args = append(args, MetaCategory, c)
	}
	query += ` ORDER BY d.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list documents", err)
	}
	var (
		docs []Document
		ids  []int64
	)
	for rows.Next() {
		var (
			doc     Document
			created string
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Body, &created); err != nil {
			rows.Close()
			return nil, wrapErr("scan document", err)
		}
		if t, perr := parseTimeString(created); perr == nil {
			doc.CreatedAt = t
		}
		docs = append(docs, doc)
		ids = append(ids, doc.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrapErr("iterate documents", err)
	}
	rows.Close()

	meta, err := s.documentMeta(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Meta = meta[docs[i].ID]
		if docs[i].Meta == nil {
			docs[i].Meta = map[string]string{}
		}
	}
	return docs, nil
}

func (s *Store) documentMeta(ctx context.Context, ids []int64) (map[int64]map[string]string, error) {
	out := make(map[int64]map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, meta_key, meta_value FROM document_meta WHERE document_id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, wrapErr("load document meta", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return nil, wrapErr("scan document meta", err)
		}
		if out[id] == nil {
			out[id] = map[string]string{}
		}
		out[id][key] = value
	}
	return out, wrapErr("iterate document meta", rows.Err())
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
