package session

import (
	"testing"
	"time"

	"github.com/loool999/browser-test-2/internal/clock"
)

func TestGetOrCreateMintsFreshSession(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Hour)

	sess := b.GetOrCreate("", "1.2.3.4", "curl/8")
	if sess.ID == "" || sess.Token == "" {
		t.Fatalf("expected non-empty id and token, got %+v", sess)
	}
	if b.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", b.Count())
	}
}

func TestGetOrCreateReusesLiveToken(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Hour)

	first := b.GetOrCreate("", "1.2.3.4", "curl/8")
	fc.Advance(time.Minute)
	second := b.GetOrCreate(first.Token, "5.6.7.8", "curl/9")

	if second.ID != first.ID {
		t.Fatalf("expected reuse of existing session, got a new id")
	}
	if second.IPAddress != "5.6.7.8" || second.UserAgent != "curl/9" {
		t.Fatalf("expected ip/user-agent refresh, got %+v", second)
	}
	if b.Count() != 1 {
		t.Fatalf("expected still 1 session, got %d", b.Count())
	}
}

func TestGetOrCreateReplacesExpiredToken(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Minute)

	first := b.GetOrCreate("", "1.2.3.4", "curl/8")
	fc.Advance(2 * time.Minute)
	second := b.GetOrCreate(first.Token, "1.2.3.4", "curl/8")

	if second.ID == first.ID {
		t.Fatalf("expected a fresh session after expiry, got the same id")
	}
	if b.Count() != 1 {
		t.Fatalf("expected the expired session to be replaced, not accumulated, got count=%d", b.Count())
	}
}

func TestValidateExpiresAndDeletes(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Minute)

	sess := b.GetOrCreate("", "1.2.3.4", "curl/8")

	if _, ok := b.Validate(sess.Token); !ok {
		t.Fatalf("expected session to validate while fresh")
	}

	fc.Advance(2 * time.Minute)
	if _, ok := b.Validate(sess.Token); ok {
		t.Fatalf("expected session to be expired")
	}
	if b.Count() != 0 {
		t.Fatalf("expected Validate to delete the expired session, count=%d", b.Count())
	}
}

func TestTokenIndexConsistencyAfterDelete(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Hour)

	a := b.GetOrCreate("", "1.1.1.1", "ua-a")
	c := b.GetOrCreate("", "2.2.2.2", "ua-c")

	b.Delete(a.ID)

	if _, ok := b.Validate(a.Token); ok {
		t.Fatalf("expected deleted session's token to be invalid")
	}
	if _, ok := b.Get(a.ID); ok {
		t.Fatalf("expected deleted session's id to be gone")
	}
	if sess, ok := b.Get(c.ID); !ok || sess.Token != c.Token {
		t.Fatalf("expected the other session to survive untouched")
	}
}

func TestSetBrowserIDAndUpdate(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Hour)

	sess := b.GetOrCreate("", "1.1.1.1", "ua")
	if err := b.SetBrowserID(sess.ID, "browser-123"); err != nil {
		t.Fatalf("SetBrowserID failed: %v", err)
	}

	got, ok := b.Get(sess.ID)
	if !ok || got.BrowserID != "browser-123" {
		t.Fatalf("expected BrowserID to be set, got %+v", got)
	}
}

func TestUpdateUnknownIDFails(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Hour)

	if err := b.SetBrowserID("does-not-exist", "x"); err == nil {
		t.Fatalf("expected error for unknown session id")
	}
}

func TestReapExpiredRemovesOnlyStaleSessions(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Minute)

	stale := b.GetOrCreate("", "1.1.1.1", "ua-stale")
	fc.Advance(30 * time.Second)
	fresh := b.GetOrCreate("", "2.2.2.2", "ua-fresh")

	fc.Advance(40 * time.Second) // stale is now 70s old, fresh is 40s old
	n := b.ReapExpired()
	if n != 1 {
		t.Fatalf("expected exactly 1 session reaped, got %d", n)
	}

	if _, ok := b.Get(stale.ID); ok {
		t.Fatalf("expected stale session to be gone")
	}
	if _, ok := b.Get(fresh.ID); !ok {
		t.Fatalf("expected fresh session to survive")
	}
}

func TestAllReturnsClones(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New(fc, time.Hour)

	sess := b.GetOrCreate("", "1.1.1.1", "ua")
	all := b.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}

	all[0].BrowserID = "mutated-externally"
	got, _ := b.Get(sess.ID)
	if got.BrowserID == "mutated-externally" {
		t.Fatalf("expected All() to return independent clones")
	}
}
