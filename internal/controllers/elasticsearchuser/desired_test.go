package elasticsearchuser

import (
	"testing"

	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	esv1alpha1 "github.com/snapp-incubator/elasticsearch-user-operator/api/v1alpha1"
	"github.com/snapp-incubator/elasticsearch-user-operator/internal/esclient"
)

func newUser(username, secretRef string, prefixes []string, permission esv1alpha1.UserPermission) *esv1alpha1.ElasticsearchUser {
	return &esv1alpha1.ElasticsearchUser{
		ObjectMeta: metav1.ObjectMeta{Name: "test-user", Namespace: "default"},
		Spec: esv1alpha1.ElasticsearchUserSpec{
			Username:   username,
			SecretRef:  secretRef,
			Prefixes:   prefixes,
			Permission: permission,
		},
	}
}

func TestBuildDesiredState(t *testing.T) {
	testCases := []struct {
		name       string
		prefixes   []string
		permission esv1alpha1.UserPermission
		wantNames  []string
		wantPrivs  []string
		wantErr    bool
	}{
		{
			name:       "read permission with one prefix",
			prefixes:   []string{"logs-"},
			permission: esv1alpha1.PermissionRead,
			wantNames:  []string{"logs-*"},
			wantPrivs:  []string{"read"},
		},
		{
			name:       "write permission with multiple prefixes",
			prefixes:   []string{"logs-", "metrics-"},
			permission: esv1alpha1.PermissionWrite,
			wantNames:  []string{"logs-*", "metrics-*"},
			wantPrivs:  []string{"read", "write"},
		},
		{
			name:       "create permission includes create_index",
			prefixes:   []string{"logs-"},
			permission: esv1alpha1.PermissionCreate,
			wantNames:  []string{"logs-*"},
			wantPrivs:  []string{"read", "write", "create_index"},
		},
		{
			name:       "empty prefixes rejected",
			prefixes:   []string{},
			permission: esv1alpha1.PermissionRead,
			wantErr:    true,
		},
		{
			name:       "empty prefix string rejected",
			prefixes:   []string{"logs-", ""},
			permission: esv1alpha1.PermissionRead,
			wantErr:    true,
		},
		{
			name:       "unknown permission rejected",
			prefixes:   []string{"logs-"},
			permission: esv1alpha1.UserPermission("Admin"),
			wantErr:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			user := newUser("alice", "alice-credentials", tc.prefixes, tc.permission)

			desired, err := buildDesiredState(user)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "alice", desired.Username)
			require.Equal(t, "role-alice", desired.RoleName)
			require.Equal(t, "alice-credentials", desired.SecretName)
			require.Len(t, desired.Role.Indices, 1)
			require.Equal(t, tc.wantNames, desired.Role.Indices[0].Names)
			require.Equal(t, tc.wantPrivs, desired.Role.Indices[0].Privileges)
		})
	}
}

func TestBuildDesiredStateDeterministic(t *testing.T) {
	user := newUser("alice", "alice-credentials", []string{"logs-"}, esv1alpha1.PermissionWrite)

	first, err := buildDesiredState(user)
	require.NoError(t, err)
	second, err := buildDesiredState(user)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDesiredRoleEqualIgnoresOrder(t *testing.T) {
	user := newUser("alice", "alice-credentials", []string{"a-", "b-"}, esv1alpha1.PermissionWrite)

	desired, err := buildDesiredState(user)
	require.NoError(t, err)

	reordered := &esclient.Role{Indices: []esclient.IndexPermission{{
		Names:      []string{"b-*", "a-*"},
		Privileges: []string{"write", "read"},
	}}}
	require.True(t, desired.Role.Equal(reordered))
}
