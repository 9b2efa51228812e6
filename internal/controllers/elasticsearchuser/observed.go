package elasticsearchuser

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	"github.com/snapp-incubator/elasticsearch-user-operator/pkg/consts"
)

// observedState is the current role/user/Secret state as seen in one fetch
// cycle.
type observedState struct {
	RoleExists        bool
	RolePolicyMatches bool
	UserExists        bool
	SecretExists      bool
	SecretPassword    string
	LoginSucceeds     bool
}

// fetchObserved reads the current state of the role, the user, and the Secret,
// and probes the stored credential with a login attempt. A rejected login is a
// normal signal; any transport failure is returned as a retryable error.
func (r *Reconciler) fetchObserved(ctx context.Context) (*observedState, error) {
	observed := &observedState{}

	role, found, err := r.esClient.GetRole(ctx, r.desired.RoleName)
	if err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", r.desired.RoleName, err)
	}
	observed.RoleExists = found
	if found {
		observed.RolePolicyMatches = r.desired.Role.Equal(role)
	}

	_, found, err = r.esClient.GetUser(ctx, r.desired.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", r.desired.Username, err)
	}
	observed.UserExists = found

	secret := &corev1.Secret{}
	switch err := r.Get(
		ctx,
		types.NamespacedName{Namespace: r.elasticsearchUser.Namespace, Name: r.desired.SecretName},
		secret,
	); {
	case apierrors.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("failed to get secret %s: %w", r.desired.SecretName, err)
	default:
		observed.SecretExists = true
		observed.SecretPassword = string(secret.Data[consts.DataKeyPassword])
	}

	// The probe only makes sense once the role policy matches and the user
	// exists; a known mismatch already implies corrective work.
	if observed.SecretPassword != "" && observed.UserExists && observed.RolePolicyMatches {
		ok, err := r.esClient.Login(ctx, r.desired.Username, observed.SecretPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to probe login of user %s: %w", r.desired.Username, err)
		}
		observed.LoginSucceeds = ok
	}

	return observed, nil
}
