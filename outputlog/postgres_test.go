package outputlog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/onnwee/chat-tap/stream"
)

// setupTestPG connects to the database named by TEST_PG_DSN and leaves a
// clean chat_pages table behind; the test is skipped when the variable is
// unset.
func setupTestPG(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	sink, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	if _, err := sink.db.Exec(`TRUNCATE chat_pages`); err != nil {
		t.Fatalf("truncate chat_pages: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestPostgresEmitAndLastRecord(t *testing.T) {
	sink := setupTestPG(t)
	ctx := context.Background()

	if err := sink.Emit(ctx, testRecord("", "1", "m1")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := sink.Emit(ctx, testRecord("1", "2", "m2", "m3")); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	rec, err := sink.LastRecord(ctx)
	if err != nil {
		t.Fatalf("LastRecord: %v", err)
	}
	if rec == nil || rec.NextPageToken != "2" {
		t.Fatalf("rec = %+v, want next token 2", rec)
	}
	if len(rec.Items) != 2 || rec.Items[0].ID != "m2" {
		t.Errorf("items = %+v, want [m2 m3]", rec.Items)
	}
	if rec.ReceivedAt.After(time.Now()) {
		t.Errorf("received_at in the future: %v", rec.ReceivedAt)
	}
}

func TestPostgresLastRecordEmptyTable(t *testing.T) {
	sink := setupTestPG(t)
	rec, err := sink.LastRecord(context.Background())
	if err != nil || rec != nil {
		t.Errorf("LastRecord = %v, %v; want nil, nil on empty table", rec, err)
	}
}

func TestPostgresResumeCursor(t *testing.T) {
	sink := setupTestPG(t)
	ctx := context.Background()
	if err := sink.Emit(ctx, testRecord("4", "5")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec, err := sink.LastRecord(ctx)
	if err != nil {
		t.Fatalf("LastRecord: %v", err)
	}
	cur, err := stream.CursorFromRecord(rec)
	if err != nil {
		t.Fatalf("CursorFromRecord: %v", err)
	}
	if cur.ChatID != "chat-1" || cur.PageToken != "5" {
		t.Errorf("cursor = {%q %q}, want {chat-1 5}", cur.ChatID, cur.PageToken)
	}
}
