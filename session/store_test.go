package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/device"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, "ag"), mr
}

func makeSession(id, userID, fingerprint string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		UserID:       userID,
		Fingerprint:  fingerprint,
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		Device:       device.Descriptor{Browser: "Chrome", OS: "Linux", DeviceType: "desktop"},
		Active:       true,
		ExpiresAt:    now.Add(time.Hour).Unix(),
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}
}

func TestUpsertCreatesAndGets(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, created, err := store.Upsert(ctx, makeSession("s1", "u1", "fp1"), time.Hour)
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if !created || id != "s1" {
		t.Fatalf("expected new session s1, got id=%q created=%v", id, created)
	}

	sess, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if sess.UserID != "u1" || sess.Fingerprint != "fp1" || sess.AccessToken != "access-s1" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestUpsertSameDeviceReplacesInPlace(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := makeSession("s1", "u1", "fp1")
	if _, _, err := store.Upsert(ctx, first, time.Hour); err != nil {
		t.Fatalf("first Upsert error: %v", err)
	}

	second := makeSession("s2", "u1", "fp1")
	id, created, err := store.Upsert(ctx, second, time.Hour)
	if err != nil {
		t.Fatalf("second Upsert error: %v", err)
	}
	if created {
		t.Fatal("expected second login to update the existing record")
	}
	if id != "s1" {
		t.Fatalf("expected surviving session id s1, got %q", id)
	}

	sess, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if sess.AccessToken != "access-s2" || sess.RefreshToken != "refresh-s2" {
		t.Fatalf("expected replaced tokens, got %+v", sess)
	}
	if sess.CreatedAt != first.CreatedAt {
		t.Fatalf("expected preserved createdAt %d, got %d", first.CreatedAt, sess.CreatedAt)
	}

	// The candidate record must not exist under its own ID.
	if _, err := store.Get(ctx, "s2"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for candidate id, got %v", err)
	}
}

func TestUpsertDistinctDevicesCreateDistinctSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Upsert(ctx, makeSession("s1", "u1", "fp1"), time.Hour); err != nil {
		t.Fatalf("Upsert fp1 error: %v", err)
	}
	id, created, err := store.Upsert(ctx, makeSession("s2", "u1", "fp2"), time.Hour)
	if err != nil {
		t.Fatalf("Upsert fp2 error: %v", err)
	}
	if !created || id != "s2" {
		t.Fatalf("expected new session for second device, got id=%q created=%v", id, created)
	}

	ids, err := store.SessionIDsForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("SessionIDsForUser error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 tracked sessions, got %d", len(ids))
	}
}

func TestFindByDevice(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Upsert(ctx, makeSession("s1", "u1", "fp1"), time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	sess, err := store.FindByDevice(ctx, "u1", "fp1")
	if err != nil {
		t.Fatalf("FindByDevice error: %v", err)
	}
	if sess.ID != "s1" {
		t.Fatalf("expected s1, got %q", sess.ID)
	}

	if _, err := store.FindByDevice(ctx, "u1", "other"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for unknown device, got %v", err)
	}
}

func TestDeleteRemovesAllKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Upsert(ctx, makeSession("s1", "u1", "fp1"), time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	existed, err := store.Delete(ctx, "s1")
	if err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if !existed {
		t.Fatal("expected delete to report an existing record")
	}

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
	if _, err := store.FindByDevice(ctx, "u1", "fp1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected device pointer removed, got %v", err)
	}

	existed, err = store.Delete(ctx, "s1")
	if err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
	if existed {
		t.Fatal("expected second delete to report no record")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Upsert(ctx, makeSession("s1", "u1", "fp1"), time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if _, _, err := store.Upsert(ctx, makeSession("s2", "u1", "fp2"), time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if _, _, err := store.Upsert(ctx, makeSession("s3", "u2", "fp1"), time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	removed, err := store.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForUser error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	// The other user's session survives.
	if _, err := store.Get(ctx, "s3"); err != nil {
		t.Fatalf("expected u2 session to survive: %v", err)
	}
}

func TestGetExpiredRecordReadsAsAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("s1", "u1", "fp1")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if _, _, err := store.Upsert(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for expired record, got %v", err)
	}
}

func TestKeyTTLApplied(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Upsert(ctx, makeSession("s1", "u1", "fp1"), time.Hour); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected record reaped by TTL, got %v", err)
	}
}
