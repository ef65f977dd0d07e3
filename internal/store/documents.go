package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *SQLStore) CreateDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		d.ID = newID()
	}
	now := s.now()
	d.CreatedAt = now.UTC()
	d.IsProcessed, d.ChunkCount = false, 0
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents
		(id, title, description, file_path, uploaded_by, is_processed, chunk_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.Title, strArg(d.Description), d.FilePath, d.UploadedBy, false, 0, ms(now))
	return err
}

// InsertChunk stores one embedded chunk. A duplicate (document_id, chunk_index)
// is rejected by the schema.
func (s *SQLStore) InsertChunk(ctx context.Context, c *DocumentChunk) error {
	if len(c.Embedding) == 0 {
		return fmt.Errorf("chunk %d: empty embedding", c.ChunkIndex)
	}
	if c.ID == "" {
		c.ID = newID()
	}
	emb, err := s.vectorArg(c.Embedding)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO document_chunks
		(id, document_id, chunk_index, chunk_content, embedding)
		VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.DocumentID, c.ChunkIndex, c.Content, emb)
	return err
}

func (s *SQLStore) MarkDocumentProcessed(ctx context.Context, id string, chunkCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET is_processed=$1, chunk_count=$2 WHERE id=$3`, true, chunkCount, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *SQLStore) GetDocument(ctx context.Context, id string) (Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT id, title, description, file_path, uploaded_by,
		is_processed, chunk_count, created_at FROM documents WHERE id=$1`, id))
	if err != nil {
		return Document{}, notFound(err)
	}
	return d, nil
}

func (s *SQLStore) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, description, file_path, uploaded_by,
		is_processed, chunk_count, created_at FROM documents
		WHERE ($1 = '' OR uploaded_by = $1)
		ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it.
func (s *SQLStore) DeleteDocument(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id=$1 AND ($2 = '' OR uploaded_by = $2)`, id, ownerID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// ChunkContents returns a document's chunk texts in index order.
func (s *SQLStore) ChunkContents(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_content FROM document_chunks WHERE document_id=$1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanDocument(r rowScanner) (Document, error) {
	var d Document
	var desc sql.NullString
	var at int64
	if err := r.Scan(&d.ID, &d.Title, &desc, &d.FilePath, &d.UploadedBy, &d.IsProcessed, &d.ChunkCount, &at); err != nil {
		return Document{}, err
	}
	d.Description = nullStr(desc)
	d.CreatedAt = fromMS(at)
	return d, nil
}
