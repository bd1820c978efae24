package notes

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/kalambet/mdnotes/internal/apperr"
	"github.com/kalambet/mdnotes/internal/objectstore"
	"github.com/kalambet/mdnotes/internal/storage"
)

type mockRecords struct {
	getFn func(ctx context.Context, id string) (storage.Note, error)
}

func (m *mockRecords) GetNote(ctx context.Context, id string) (storage.Note, error) {
	return m.getFn(ctx, id)
}

type mockObjects struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
}

func (m *mockObjects) Get(ctx context.Context, key string) ([]byte, error) {
	return m.getFn(ctx, key)
}

func TestContent_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	objects := objectstore.NewMemory("notes", 0)

	body := "# Hello\n\nworld\n"
	key := objectstore.NewKey()
	url, err := objects.Upload(ctx, bytes.NewReader([]byte(body)), int64(len(body)), key)
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.CreateNote(ctx, storage.NewNote{ObjectKey: key, PublicURL: url, BackupPath: "/tmp/b.md"})
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader(db, objects)
	first, err := r.Content(ctx, n.ID)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	second, err := r.Content(ctx, n.ID)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if first != body || second != body {
		t.Errorf("Content = %q, %q; want %q twice", first, second, body)
	}
}

func TestNote_NotFound(t *testing.T) {
	r := NewReader(&mockRecords{getFn: func(context.Context, string) (storage.Note, error) {
		return storage.Note{}, storage.ErrNotFound
	}}, nil)

	for _, id := range []string{"", "missing"} {
		if _, err := r.Note(context.Background(), id); !apperr.Is(err, apperr.NotFound) {
			t.Errorf("Note(%q): err = %v, want NotFound", id, err)
		}
	}
}

func TestNote_StoreError(t *testing.T) {
	r := NewReader(&mockRecords{getFn: func(context.Context, string) (storage.Note, error) {
		return storage.Note{}, errors.New("disk I/O error")
	}}, nil)

	if _, err := r.Note(context.Background(), "x"); apperr.Is(err, apperr.NotFound) || err == nil {
		t.Errorf("err = %v, want a non-NotFound failure", err)
	}
}

func TestContent_Failures(t *testing.T) {
	withKey := func(key string) *mockRecords {
		return &mockRecords{getFn: func(_ context.Context, id string) (storage.Note, error) {
			return storage.Note{ID: id, ObjectKey: key}, nil
		}}
	}

	tests := []struct {
		name    string
		records *mockRecords
		getErr  error
		want    apperr.Kind
	}{
		{"empty object key", withKey(""), nil, apperr.NotFound},
		{"object missing", withKey("notes/a.md"), apperr.E(apperr.NotFound, "object not found", nil), apperr.NotFound},
		{"fetch failure", withKey("notes/a.md"), apperr.E(apperr.FetchFailed, "timeout", nil), apperr.FetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := &mockObjects{getFn: func(context.Context, string) ([]byte, error) {
				if tt.getErr != nil {
					return nil, tt.getErr
				}
				t.Fatal("object store should not be called")
				return nil, nil
			}}
			_, err := NewReader(tt.records, objects).Content(context.Background(), "id-1")
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}
}
