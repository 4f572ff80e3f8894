package outputlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/chat-tap/stream"
)

// Postgres stores one row per delivered page. It satisfies the same contract
// as the JSONL sink, so swapping persistence does not touch the cursor
// reconstruction logic.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection, and applies the idempotent
// schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS chat_pages (
		id BIGSERIAL PRIMARY KEY,
		chat_id TEXT NOT NULL,
		page_token TEXT NOT NULL DEFAULT '',
		next_page_token TEXT NOT NULL DEFAULT '',
		received_at TIMESTAMPTZ NOT NULL,
		items JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate chat_pages: %w", err)
	}
	return nil
}

func (s *Postgres) Emit(ctx context.Context, rec *stream.Record) error {
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("encode record items: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_pages (chat_id, page_token, next_page_token, received_at, items) VALUES ($1,$2,$3,$4,$5)`,
		rec.ChatID, rec.PageToken, rec.NextPageToken, rec.ReceivedAt, items)
	if err != nil {
		return fmt.Errorf("insert chat page: %w", err)
	}
	return nil
}

func (s *Postgres) LastRecord(ctx context.Context) (*stream.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, page_token, next_page_token, received_at, items FROM chat_pages ORDER BY id DESC LIMIT 1`)
	var rec stream.Record
	var items []byte
	err := row.Scan(&rec.ChatID, &rec.PageToken, &rec.NextPageToken, &rec.ReceivedAt, &items)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest chat page: %w", err)
	}
	if err := json.Unmarshal(items, &rec.Items); err != nil {
		return nil, fmt.Errorf("%w: decode items of latest chat page: %v", stream.ErrMalformedRecord, err)
	}
	return &rec, nil
}

func (s *Postgres) Close() error { return s.db.Close() }
