// ABOUTME: Backend-independent Store contract shared by the SQLite and Postgres tests
// ABOUTME: Covers session lookup, idempotent deactivation, reject windows, and contacts

package store

import (
	"context"
	"errors"
	"testing"
)

// runStoreContract runs every contract case against a fresh store from open.
func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s Store)
	}{
		{"UpsertAndGetActiveSession", testUpsertAndGetActiveSession},
		{"GetActiveSessionNotFound", testGetActiveSessionNotFound},
		{"DeactivateSessionIdempotent", testDeactivateSessionIdempotent},
		{"Contacts", testContacts},
		{"Ping", testPing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func testUpsertAndGetActiveSession(t *testing.T, s Store) {
	ctx := context.Background()

	sess := &Session{
		Name:              "s1",
		Token:             "tok",
		IsActive:          true,
		RejectCallEnabled: true,
		RejectWindowStart: MustTimeOfDay("22:00"),
		RejectWindowEnd:   MustTimeOfDay("06:00"),
	}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if sess.ID == 0 {
		t.Error("UpsertSession did not assign an ID")
	}

	got, err := s.GetActiveSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if got.Token != "tok" || !got.RejectCallEnabled {
		t.Errorf("got %+v", got)
	}
	if got.RejectWindowStart == nil || got.RejectWindowStart.String() != "22:00:00" {
		t.Errorf("RejectWindowStart = %v, want 22:00:00", got.RejectWindowStart)
	}
	if got.RejectWindowEnd == nil || got.RejectWindowEnd.String() != "06:00:00" {
		t.Errorf("RejectWindowEnd = %v, want 06:00:00", got.RejectWindowEnd)
	}

	// Upsert keeps the same row
	firstID := sess.ID
	sess.Token = "tok2"
	sess.RejectWindowStart = nil
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("second UpsertSession failed: %v", err)
	}
	if sess.ID != firstID {
		t.Errorf("upsert changed ID from %d to %d", firstID, sess.ID)
	}
	got, err = s.GetActiveSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if got.Token != "tok2" || got.RejectWindowStart != nil {
		t.Errorf("after upsert got %+v", got)
	}
}

func testGetActiveSessionNotFound(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetActiveSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := s.UpsertSession(ctx, &Session{Name: "off", IsActive: false}); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if _, err := s.GetActiveSession(ctx, "off"); !errors.Is(err, ErrNotFound) {
		t.Errorf("inactive session: err = %v, want ErrNotFound", err)
	}
}

func testDeactivateSessionIdempotent(t *testing.T, s Store) {
	ctx := context.Background()

	if err := s.UpsertSession(ctx, &Session{Name: "s1", IsActive: true}); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	changed, err := s.DeactivateSession(ctx, "s1")
	if err != nil || !changed {
		t.Fatalf("first DeactivateSession = %v, %v; want true, nil", changed, err)
	}
	changed, err = s.DeactivateSession(ctx, "s1")
	if err != nil || changed {
		t.Fatalf("second DeactivateSession = %v, %v; want false, nil", changed, err)
	}
	changed, err = s.DeactivateSession(ctx, "never-existed")
	if err != nil || changed {
		t.Fatalf("unknown DeactivateSession = %v, %v; want false, nil", changed, err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].IsActive {
		t.Errorf("sessions = %+v, want one inactive", sessions)
	}
}

func testContacts(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.GetContact(ctx, "s1", "123@lid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	if err := s.SaveContact(ctx, &ContactMapping{SessionName: "s1", Identifier: "123@lid", Phone: "5511999"}); err != nil {
		t.Fatalf("SaveContact failed: %v", err)
	}
	if err := s.SaveContact(ctx, &ContactMapping{SessionName: "s1", Identifier: "123@lid", Phone: "5511888"}); err != nil {
		t.Fatalf("SaveContact overwrite failed: %v", err)
	}

	c, err := s.GetContact(ctx, "s1", "123@lid")
	if err != nil {
		t.Fatalf("GetContact failed: %v", err)
	}
	if c.Phone != "5511888" {
		t.Errorf("Phone = %q, want 5511888", c.Phone)
	}
	if c.ResolvedAt.IsZero() {
		t.Error("ResolvedAt not set")
	}
}

func testPing(t *testing.T, s Store) {
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
