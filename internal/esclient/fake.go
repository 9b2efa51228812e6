package esclient

import (
	"context"
	"sync"
)

// Fake is an in-memory Client used by tests. It mimics the security API
// closely enough for the reconciler: roles and users are stored by name,
// passwords are kept out of the user document the way Elasticsearch never
// returns them on reads.
type Fake struct {
	mu        sync.Mutex
	url       string
	roles     map[string]Role
	users     map[string]User
	passwords map[string]string
}

var _ Client = &Fake{}

func NewFake(url string) *Fake {
	return &Fake{
		url:       url,
		roles:     map[string]Role{},
		users:     map[string]User{},
		passwords: map[string]string{},
	}
}

func (f *Fake) URL() string {
	return f.url
}

func (f *Fake) GetRole(ctx context.Context, name string) (*Role, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	role, ok := f.roles[name]
	if !ok {
		return nil, false, nil
	}
	return &role, true, nil
}

func (f *Fake) PutRole(ctx context.Context, name string, role *Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.roles[name] = *role
	return nil
}

func (f *Fake) DeleteRole(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.roles[name]
	delete(f.roles, name)
	return ok, nil
}

func (f *Fake) GetUser(ctx context.Context, name string) (*User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[name]
	if !ok {
		return nil, false, nil
	}
	user.Password = ""
	return &user, true, nil
}

func (f *Fake) PutUser(ctx context.Context, name string, user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := *user
	if stored.Password != "" {
		f.passwords[name] = stored.Password
	}
	stored.Password = ""
	f.users[name] = stored
	return nil
}

func (f *Fake) DeleteUser(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.users[name]
	delete(f.users, name)
	delete(f.passwords, name)
	return ok, nil
}

func (f *Fake) ChangePassword(ctx context.Context, name, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.passwords[name] = password
	return nil
}

func (f *Fake) Login(ctx context.Context, username, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.passwords[username]
	return ok && password != "" && stored == password, nil
}

func (f *Fake) ConnectionOK(ctx context.Context) error {
	return nil
}
