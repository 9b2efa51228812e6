package elasticsearchuser

// The diff between desired and observed state is an ordered list of corrective
// actions. Actions are appended only when their guard confirms a mismatch, so
// no Elasticsearch write is ever issued speculatively. The order matters: the
// role must exist before the user referencing it, and the user's real password
// must exist before the Secret is asserted to match it.

type actionKind string

const (
	actionPutRole       actionKind = "put-role"
	actionPutUser       actionKind = "put-user"
	actionCreateSecret  actionKind = "create-secret"
	actionPatchSecret   actionKind = "patch-secret-password"
	actionResetPassword actionKind = "reset-password"
)

type action struct {
	kind     actionKind
	password string
}

// diff computes the corrective actions for one reconcile cycle.
//
// The Secret is the authoritative credential source once it holds a password:
// a missing user is (re)created with the Secret's stored password, and a
// failed login probe pushes the Secret's password into Elasticsearch. A fresh
// password is generated only when no Secret holds one yet.
func diff(desired *desiredState, observed *observedState, newPassword func() (string, error)) ([]action, error) {
	var actions []action

	roleOK := observed.RoleExists && observed.RolePolicyMatches
	if !roleOK {
		actions = append(actions, action{kind: actionPutRole})
	}

	// No stored password means either no Secret at all or a Secret stripped
	// of its password key; both need a fresh credential.
	password := observed.SecretPassword
	if password == "" {
		generated, err := newPassword()
		if err != nil {
			return nil, err
		}
		password = generated
	}

	if !observed.UserExists {
		actions = append(actions, action{kind: actionPutUser, password: password})
	}

	if !observed.SecretExists {
		actions = append(actions, action{kind: actionCreateSecret, password: password})
	}

	// A Secret stripped of its password key gets a fresh credential; the
	// follow-up verification pass aligns the Elasticsearch user with it.
	if observed.SecretExists && observed.SecretPassword == "" {
		actions = append(actions, action{kind: actionPatchSecret, password: password})
	}

	if observed.SecretExists && observed.SecretPassword != "" &&
		observed.UserExists && roleOK && !observed.LoginSucceeds {
		actions = append(actions, action{kind: actionResetPassword, password: observed.SecretPassword})
	}

	return actions, nil
}
