package esclient

import (
	"context"
	"sort"
)

// IndexPermission grants a privilege set on a list of index patterns.
type IndexPermission struct {
	Names      []string `json:"names"`
	Privileges []string `json:"privileges"`
}

// Role is the subset of the Elasticsearch role document managed by the
// operator.
type Role struct {
	Indices []IndexPermission `json:"indices"`
}

// User is the Elasticsearch security user document.
type User struct {
	Password string            `json:"password,omitempty"`
	Roles    []string          `json:"roles"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client issues role/user CRUD and authentication-check requests against the
// Elasticsearch security API. Get methods report absence via the bool return
// instead of an error; Delete methods treat "already absent" as success and
// report whether the object existed.
type Client interface {
	GetRole(ctx context.Context, name string) (*Role, bool, error)
	PutRole(ctx context.Context, name string, role *Role) error
	DeleteRole(ctx context.Context, name string) (bool, error)

	GetUser(ctx context.Context, name string) (*User, bool, error)
	PutUser(ctx context.Context, name string, user *User) error
	DeleteUser(ctx context.Context, name string) (bool, error)
	ChangePassword(ctx context.Context, name, password string) error

	// Login authenticates with the given credentials. A credential rejection
	// returns (false, nil); only transport failures return an error.
	Login(ctx context.Context, username, password string) (bool, error)

	// ConnectionOK verifies the configured operator credentials work and
	// belong to a superuser.
	ConnectionOK(ctx context.Context) error

	URL() string
}

// Equal compares two roles ignoring the order of index permissions and of the
// names and privileges inside each permission.
func (r *Role) Equal(other *Role) bool {
	if other == nil {
		return false
	}
	a := r.normalized()
	b := other.normalized()
	if len(a.Indices) != len(b.Indices) {
		return false
	}
	for i := range a.Indices {
		if !stringSlicesEqual(a.Indices[i].Names, b.Indices[i].Names) ||
			!stringSlicesEqual(a.Indices[i].Privileges, b.Indices[i].Privileges) {
			return false
		}
	}
	return true
}

func (r *Role) normalized() Role {
	out := Role{Indices: make([]IndexPermission, len(r.Indices))}
	for i, perm := range r.Indices {
		names := append([]string(nil), perm.Names...)
		privileges := append([]string(nil), perm.Privileges...)
		sort.Strings(names)
		sort.Strings(privileges)
		out.Indices[i] = IndexPermission{Names: names, Privileges: privileges}
	}
	sort.Slice(out.Indices, func(i, j int) bool {
		a, b := out.Indices[i], out.Indices[j]
		if len(a.Names) == 0 || len(b.Names) == 0 {
			return len(a.Names) < len(b.Names)
		}
		return a.Names[0] < b.Names[0]
	})
	return out
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
