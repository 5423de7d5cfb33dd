package history

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fota/internal/data"
)

// TestPostgresRepo runs against a real database when FOTA_TEST_DATABASE_URL
// is set.
func TestPostgresRepo(t *testing.T) {
	dsn := os.Getenv("FOTA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FOTA_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	r, err := NewPostgresRepo(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresRepo: %v", err)
	}
	defer r.Close()

	id := uuid.NewString()
	started := time.Now().UTC().Truncate(time.Microsecond)
	if _, err := r.Add(ctx, &data.Attempt{ID: id, StartedAt: started, CurrentVersion: "1.0.0", Outcome: data.OutcomeChecking}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	fin := started.Add(time.Second)
	got, err := r.Update(ctx, id, func(a *data.Attempt) error {
		a.Outcome = data.OutcomeInstalled
		a.RemoteVersion = "1.0.1"
		a.BytesWritten, a.TotalBytes = 1000, 1000
		a.FinishedAt = &fin
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Outcome != data.OutcomeInstalled || got.FinishedAt == nil {
		t.Fatalf("updated = %+v", got)
	}
	back, err := r.Get(ctx, id)
	if err != nil || back.RemoteVersion != "1.0.1" || !back.FinishedAt.Equal(fin) {
		t.Fatalf("Get = %+v, %v", back, err)
	}
	if _, err := r.Get(ctx, uuid.NewString()); !errors.Is(err, data.ErrNotFound) {
		t.Fatalf("missing id err = %v", err)
	}
	list, err := r.List(ctx)
	if err != nil || len(list) == 0 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
}
