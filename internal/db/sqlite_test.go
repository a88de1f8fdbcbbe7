package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/voicenote/whisper-api/internal/auth"
	"github.com/voicenote/whisper-api/internal/db/models"
	"github.com/voicenote/whisper-api/internal/logging"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestEnsureAdmin(t *testing.T) {
	d := openTestDB(t)

	if err := d.EnsureAdmin("admin", "secret"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	// second call is a no-op even with a different password
	if err := d.EnsureAdmin("admin", "other"); err != nil {
		t.Fatalf("EnsureAdmin again: %v", err)
	}

	u, err := d.GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if !u.IsAdmin() || !auth.CheckPassword("secret", u.Password) {
		t.Errorf("user = %+v", u)
	}

	byID, err := d.GetUserByID(u.ID)
	if err != nil || byID.Username != "admin" {
		t.Errorf("GetUserByID = %+v, %v", byID, err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.GetUserByUsername("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := d.GetUserByID(42); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTranscriptionCRUD(t *testing.T) {
	d := openTestDB(t)

	rec := &models.Transcription{
		Filename: "meeting.m4a",
		Engine:   "faster-whisper",
		Language: "en",
		Text:     "hello world",
		Segments: []byte(`[{"start":0,"end":1.2,"text":"hello"},{"start":1.2,"end":2.5,"text":"world"}]`),
		Duration: 2.5,
	}
	if err := d.SaveTranscription(rec); err != nil {
		t.Fatalf("SaveTranscription: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("id/created_at not filled: %+v", rec)
	}

	got, err := d.GetTranscription(rec.ID)
	if err != nil {
		t.Fatalf("GetTranscription: %v", err)
	}
	if got.Text != "hello world" || got.Engine != "faster-whisper" || string(got.Segments) != string(rec.Segments) {
		t.Errorf("got = %+v", got)
	}

	if err := d.DeleteTranscription(rec.ID); err != nil {
		t.Fatalf("DeleteTranscription: %v", err)
	}
	if _, err := d.GetTranscription(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v", err)
	}
	if err := d.DeleteTranscription(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestListTranscriptions(t *testing.T) {
	d := openTestDB(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.wav", "b.wav", "c.wav"} {
		err := d.SaveTranscription(&models.Transcription{
			Filename:  name,
			Engine:    "openai",
			Text:      name,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	list, total, err := d.ListTranscriptions(2, 0)
	if err != nil {
		t.Fatalf("ListTranscriptions: %v", err)
	}
	if total != 3 || len(list) != 2 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	if list[0].Filename != "c.wav" || list[1].Filename != "b.wav" {
		t.Errorf("order = %s, %s", list[0].Filename, list[1].Filename)
	}
	if list[0].Segments != nil {
		t.Errorf("list should omit segments, got %s", list[0].Segments)
	}

	list, _, err = d.ListTranscriptions(2, 2)
	if err != nil || len(list) != 1 || list[0].Filename != "a.wav" {
		t.Errorf("page 2 = %+v, %v", list, err)
	}
}
