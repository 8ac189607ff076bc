package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMetaRepository_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMetaRepository(openTestDB(t).SQL)

	if _, err := repo.Get(ctx, "viewer"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get(missing): want ErrNotFound, got %v", err)
	}

	if err := repo.Put(ctx, "viewer", json.RawMessage(`{"id":1,"name":"a"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Put(ctx, "viewer", json.RawMessage(`{"id":2,"name":"b"}`)); err != nil {
		t.Fatalf("Put(overwrite): %v", err)
	}

	got, err := repo.Get(ctx, "viewer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var v struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(got, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.ID != 2 || v.Name != "b" {
		t.Fatalf("want overwritten value, got %+v", v)
	}

	if err := repo.Delete(ctx, "viewer"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "viewer"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("Get(after delete): want ErrNotFound, got %v", err)
	}
}

func TestMetaRepository_RejectsInvalidJSON(t *testing.T) {
	repo := NewMetaRepository(openTestDB(t).SQL)
	if err := repo.Put(context.Background(), "k", json.RawMessage(`{nope`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestMetaRepository_CorruptValue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.SQL.ExecContext(ctx, `INSERT INTO meta(key, value_json, updated_at) VALUES('k', ?, 'x')`, []byte("{broken")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := NewMetaRepository(db.SQL).Get(ctx, "k")
	if !errors.Is(err, ports.ErrCorrupt) {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}
