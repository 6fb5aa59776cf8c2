package auth

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store for tests. Error fields inject storage
// faults on specific operations.
type fakeStore struct {
	creds  *fakeCredentials
	idents *fakeIdentities
	roles  *fakeRoles
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		creds: &fakeCredentials{
			byID:     map[string]*Credential{},
			byDigest: map[string]*Credential{},
		},
		idents: &fakeIdentities{
			byID:    map[string]*Identity{},
			byEmail: map[string]*Identity{},
		},
		roles: &fakeRoles{
			assignments: map[string][]RoleAssignment{},
			byID:        map[string]*Role{},
		},
	}
}

func (s *fakeStore) Credentials() CredentialStore { return s.creds }
func (s *fakeStore) Identities() IdentityStore    { return s.idents }
func (s *fakeStore) Roles() RoleStore             { return s.roles }

func (s *fakeStore) addIdentity(i *Identity) {
	s.idents.byID[i.ID] = i
	if i.Email != "" {
		s.idents.byEmail[i.Email] = i
	}
}

func (s *fakeStore) addCredential(c *Credential) {
	s.creds.byID[c.ID] = c
	s.creds.byDigest[c.Digest] = c
}

func (s *fakeStore) addRole(r *Role) {
	s.roles.byID[r.ID] = r
}

func (s *fakeStore) assign(a RoleAssignment) {
	key := a.IdentityID + "|" + a.TenantID
	s.roles.assignments[key] = append(s.roles.assignments[key], a)
}

type fakeCredentials struct {
	mu       sync.Mutex
	byID     map[string]*Credential
	byDigest map[string]*Credential

	findErr  error
	usageErr error
}

func (f *fakeCredentials) Insert(_ context.Context, cred *Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[cred.ID]; ok {
		return ErrConflict
	}
	cp := *cred
	f.byID[cred.ID] = &cp
	f.byDigest[cred.Digest] = &cp
	return nil
}

func (f *fakeCredentials) FindByID(_ context.Context, id string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCredentials) FindByDigest(_ context.Context, digest string) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.byDigest[digest]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCredentials) Transition(_ context.Context, id string, from []State, change StateChange) (*Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	guarded := false
	for _, s := range from {
		if c.State == s {
			guarded = true
			break
		}
	}
	if !guarded {
		return nil, ErrConflict
	}
	c.State = change.To
	if change.Reason != "" && change.To == StateRevoked {
		c.RevokedReason = change.Reason
	}
	if change.RotationDeadline != nil {
		c.RotationDeadline = change.RotationDeadline
	}
	if change.RotatedToID != "" {
		c.RotatedToID = change.RotatedToID
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (f *fakeCredentials) RecordUsage(_ context.Context, id string, origin Origin, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usageErr != nil {
		return f.usageErr
	}
	c, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.TotalRequests++
	c.LastUsedAt = &at
	c.LastUsedOrigin = origin.IP
	c.LastUsedUserAgent = origin.UserAgent
	return nil
}

func (f *fakeCredentials) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.byID {
		if c.State.Terminal() {
			continue
		}
		if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
			c.State = StateExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeCredentials) ListByIdentity(_ context.Context, identityID string) ([]Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Credential
	for _, c := range f.byID {
		if c.IdentityID == identityID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeIdentities struct {
	mu      sync.Mutex
	byID    map[string]*Identity
	byEmail map[string]*Identity

	findErr error
}

func (f *fakeIdentities) FindByID(_ context.Context, id string) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	i, ok := f.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (f *fakeIdentities) FindByEmail(_ context.Context, email string) (*Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	i, ok := f.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (f *fakeIdentities) RecordLoginSuccess(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	i.FailedLogins = 0
	i.LockedUntil = nil
	return nil
}

func (f *fakeIdentities) RecordLoginFailure(_ context.Context, id string, lockAfter int, lockFor time.Duration, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	i.FailedLogins++
	if i.FailedLogins >= lockAfter {
		until := at.Add(lockFor)
		i.LockedUntil = &until
	}
	return nil
}

type fakeRoles struct {
	mu          sync.Mutex
	assignments map[string][]RoleAssignment
	byID        map[string]*Role

	err error
}

func (f *fakeRoles) AssignmentsFor(_ context.Context, identityID, tenantID string) ([]RoleAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.assignments[identityID+"|"+tenantID], nil
}

func (f *fakeRoles) RoleByID(_ context.Context, roleID string) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.byID[roleID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}
