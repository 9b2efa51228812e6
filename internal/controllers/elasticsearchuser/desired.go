package elasticsearchuser

import (
	"fmt"

	esv1alpha1 "github.com/snapp-incubator/elasticsearch-user-operator/api/v1alpha1"
	"github.com/snapp-incubator/elasticsearch-user-operator/internal/esclient"
	"github.com/snapp-incubator/elasticsearch-user-operator/pkg/consts"
)

// desiredState is the target Elasticsearch and Secret shape derived from an
// ElasticsearchUser spec.
type desiredState struct {
	Username   string
	RoleName   string
	Role       esclient.Role
	SecretName string
}

// permissionPrivileges maps each permission level to Elasticsearch index
// privileges. Each level strictly contains the one below it; "create_index"
// lets Create-level users bootstrap new indices under their prefixes.
var permissionPrivileges = map[esv1alpha1.UserPermission][]string{
	esv1alpha1.PermissionRead:   {"read"},
	esv1alpha1.PermissionWrite:  {"read", "write"},
	esv1alpha1.PermissionCreate: {"read", "write", "create_index"},
}

// buildDesiredState is pure and deterministic: the same spec always yields the
// same desired state. The only error path is an invalid spec.
func buildDesiredState(user *esv1alpha1.ElasticsearchUser) (*desiredState, error) {
	if err := user.ValidateSpec(); err != nil {
		return nil, err
	}

	privileges, ok := permissionPrivileges[user.Spec.Permission]
	if !ok {
		return nil, fmt.Errorf("spec.permission %q is not one of Read, Write, Create", user.Spec.Permission)
	}

	patterns := make([]string, 0, len(user.Spec.Prefixes))
	for _, prefix := range user.Spec.Prefixes {
		patterns = append(patterns, prefix+"*")
	}

	return &desiredState{
		Username: user.Spec.Username,
		RoleName: consts.RolePrefix + user.Spec.Username,
		Role: esclient.Role{
			Indices: []esclient.IndexPermission{{
				Names:      patterns,
				Privileges: privileges,
			}},
		},
		SecretName: user.Spec.SecretRef,
	}, nil
}
