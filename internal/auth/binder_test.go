package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAuthenticateDispatch(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	activeUser(store, "u1", "t1", []string{"tracks:read"})
	store.addIdentity(&Identity{
		ID: "svc1", Kind: IdentityService, Status: IdentityStatusActive,
		Scopes: []string{"catalog:read"},
	})

	svcRaw := "srv_dispatch_00001"
	seedServiceKey(store, svcRaw, StateActive)
	patRaw := "pat_dispatch_00001"
	pk := seedPersonalKey(store, patRaw, "u1")
	pk.InheritOwnerPerms = true

	a := NewAuthenticator(store,
		WithSessionSecret([]byte("test-secret")),
		WithIssuer("rightshub"),
		WithClock(fixedClock(now)),
	)

	token, _, err := a.Sessions().Mint(store.idents.byID["u1"], "t1", time.Hour)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	cases := []struct {
		name   string
		raw    string
		scheme Scheme
	}{
		{"session", token, SchemeSession},
		{"service key", svcRaw, SchemeService},
		{"personal key", patRaw, SchemePersonal},
	}
	for _, tc := range cases {
		res, err := a.Authenticate(context.Background(), tc.raw, "", Origin{IP: "10.0.0.1"})
		if err != nil {
			t.Fatalf("%s: Authenticate: %v", tc.name, err)
		}
		if !res.OK {
			t.Fatalf("%s: failure = %s, want success", tc.name, res.Failure)
		}
		if res.Scheme != tc.scheme {
			t.Errorf("%s: scheme = %s, want %s", tc.name, res.Scheme, tc.scheme)
		}
	}
}

func TestAuthenticateUnrecognizedShape(t *testing.T) {
	a := NewAuthenticator(newFakeStore(), WithSessionSecret([]byte("s")))

	res, err := a.Authenticate(context.Background(), "not-a-credential", "", Origin{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.OK || res.Failure != FailureUnrecognized {
		t.Fatalf("failure = %s, want %s", res.Failure, FailureUnrecognized)
	}
	if res.Scheme != SchemeUnknown {
		t.Fatalf("scheme = %s, want unknown", res.Scheme)
	}
}

func TestAuthorize(t *testing.T) {
	a := NewAuthenticator(newFakeStore(), WithSessionSecret([]byte("s")))

	ok := Result{OK: true, Permissions: NewResolvedSet([]string{"tracks:read"})}
	if !a.Authorize(ok, "tracks", "read") {
		t.Error("granted permission should authorize")
	}
	if a.Authorize(ok, "tracks", "delete") {
		t.Error("ungranted permission must not authorize")
	}
	if a.Authorize(Result{OK: false, Permissions: NewResolvedSet([]string{"*"})}, "tracks", "read") {
		t.Error("failed authentication must never authorize")
	}
	if a.Authorize(Result{OK: true}, "tracks", "read") {
		t.Error("missing permission set must deny")
	}
}

func TestLoginSuccess(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	hash, err := HashPassword("hunter2!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	identity := activeUser(store, "u1", "t1", []string{"tracks:read"})
	identity.Email = "artist@example.com"
	identity.PasswordHash = hash
	store.idents.byEmail[identity.Email] = identity

	a := NewAuthenticator(store,
		WithSessionSecret([]byte("test-secret")),
		WithClock(fixedClock(now)),
	)

	token, exp, err := a.Login(context.Background(), "Artist@Example.com", "hunter2!", "t1", time.Hour)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry = %v, want now+1h", exp)
	}

	res, err := a.Authenticate(context.Background(), token, "", Origin{})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.OK || res.IdentityID != "u1" {
		t.Fatalf("minted session did not validate: %+v", res)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	store := newFakeStore()
	hash, _ := HashPassword("correct")
	identity := activeUser(store, "u1", "t1", nil)
	identity.Email = "artist@example.com"
	identity.PasswordHash = hash
	store.idents.byEmail[identity.Email] = identity

	a := NewAuthenticator(store, WithSessionSecret([]byte("s")))

	_, _, err := a.Login(context.Background(), "artist@example.com", "wrong", "t1", time.Hour)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if store.idents.byID["u1"].FailedLogins != 1 {
		t.Fatalf("failed_logins = %d, want 1", store.idents.byID["u1"].FailedLogins)
	}
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	a := NewAuthenticator(newFakeStore(), WithSessionSecret([]byte("s")))

	_, _, err := a.Login(context.Background(), "nobody@example.com", "x", "t1", time.Hour)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestLoginLockout(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	hash, _ := HashPassword("correct")
	identity := activeUser(store, "u1", "t1", nil)
	identity.Email = "artist@example.com"
	identity.PasswordHash = hash
	store.idents.byEmail[identity.Email] = identity

	a := NewAuthenticator(store,
		WithSessionSecret([]byte("s")),
		WithClock(fixedClock(now)),
	)

	for i := 0; i < lockoutThreshold; i++ {
		_, _, err := a.Login(context.Background(), "artist@example.com", "wrong", "t1", time.Hour)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: err = %v, want ErrUnauthorized", i+1, err)
		}
	}
	locked := store.idents.byID["u1"]
	if locked.LockedUntil == nil || !locked.LockedUntil.Equal(now.Add(lockoutDuration)) {
		t.Fatalf("locked_until = %v, want now+%s", locked.LockedUntil, lockoutDuration)
	}

	// Even the correct password fails while the lock holds.
	_, _, err := a.Login(context.Background(), "artist@example.com", "correct", "t1", time.Hour)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("login during lockout: err = %v, want ErrUnauthorized", err)
	}

	// The lock expires on its own; a successful login clears the counter.
	clockPast := fixedClock(now.Add(lockoutDuration + time.Minute))
	WithClock(clockPast)(a)
	if _, _, err := a.Login(context.Background(), "artist@example.com", "correct", "t1", time.Hour); err != nil {
		t.Fatalf("login after lockout expiry: %v", err)
	}
	cleared := store.idents.byID["u1"]
	if cleared.FailedLogins != 0 || cleared.LockedUntil != nil {
		t.Fatalf("counter not reset: failures=%d locked_until=%v", cleared.FailedLogins, cleared.LockedUntil)
	}
}

func TestLoginDisabledIdentity(t *testing.T) {
	store := newFakeStore()
	hash, _ := HashPassword("correct")
	store.addIdentity(&Identity{
		ID: "u1", Email: "artist@example.com", PasswordHash: hash,
		Status: IdentityStatusDisabled,
	})
	a := NewAuthenticator(store, WithSessionSecret([]byte("s")))

	_, _, err := a.Login(context.Background(), "artist@example.com", "correct", "t1", time.Hour)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestResultContext(t *testing.T) {
	res := Result{OK: true, IdentityID: "u1"}
	ctx := ContextWithResult(context.Background(), res)

	got, ok := ResultFromContext(ctx)
	if !ok || got.IdentityID != "u1" {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	if _, ok := ResultFromContext(context.Background()); ok {
		t.Fatal("empty context should carry no result")
	}
}
