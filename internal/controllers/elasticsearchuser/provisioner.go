package elasticsearchuser

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/opdev/subreconciler"
	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	genericregistry "k8s.io/apiserver/pkg/registry/generic/registry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/snapp-incubator/elasticsearch-user-operator/internal/esclient"
	"github.com/snapp-incubator/elasticsearch-user-operator/pkg/consts"
)

// Provision provisions the role, the user, and the credentials Secret for the
// elasticsearchUser object.
func (r *Reconciler) Provision(ctx context.Context) (ctrl.Result, error) {
	// Do the actual reconcile work
	subrecs := []subreconciler.Fn{
		// The finalizer goes on first so deletion can never bypass cleanup.
		r.addCleanupFinalizer,
		r.admitToRegistry,
		r.buildDesired,
		r.applyCorrections,
		r.updateStatus,
	}
	for _, subrec := range subrecs {
		result, err := subrec(ctx)
		if subreconciler.ShouldHaltOrRequeue(result, err) {
			return subreconciler.Evaluate(result, err)
		}
	}

	r.registry.markReconciled(r.elasticsearchUser.UID, r.elasticsearchUser.Generation)

	// Periodic full re-evaluation, independent of change events.
	return subreconciler.Evaluate(subreconciler.RequeueWithDelay(r.resyncInterval))
}

func (r *Reconciler) addCleanupFinalizer(ctx context.Context) (*ctrl.Result, error) {
	if objUpdated := controllerutil.AddFinalizer(r.elasticsearchUser, consts.ElasticsearchUserCleanupFinalizer); objUpdated {
		if err := r.Update(ctx, r.elasticsearchUser); err != nil {
			r.logger.Error(err, "failed to add cleanup finalizer")
			return subreconciler.Requeue()
		}
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) admitToRegistry(ctx context.Context) (*ctrl.Result, error) {
	err := r.registry.admit(r.elasticsearchUser)
	collision := &collisionError{}
	if goerrors.As(err, &collision) {
		// The first holder stays authoritative; this resource is parked with
		// a condition until its spec changes.
		return r.haltWithConfigError(ctx, err)
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) buildDesired(ctx context.Context) (*ctrl.Result, error) {
	desired, err := buildDesiredState(r.elasticsearchUser)
	if err != nil {
		return r.haltWithConfigError(ctx, err)
	}
	r.desired = desired
	return subreconciler.ContinueReconciling()
}

// applyCorrections runs fetch-diff-apply passes until the observed state
// matches the desired one. Two corrective passes cover every single-drift
// case; anything still divergent afterwards is handed back to the workqueue.
func (r *Reconciler) applyCorrections(ctx context.Context) (*ctrl.Result, error) {
	for pass := 0; pass < 3; pass++ {
		observed, err := r.fetchObserved(ctx)
		if err != nil {
			r.logger.Error(err, "failed to fetch observed state")
			return subreconciler.Requeue()
		}

		actions, err := diff(r.desired, observed, r.newPassword)
		if err != nil {
			r.logger.Error(err, "failed to compute corrective actions")
			return subreconciler.Requeue()
		}
		if len(actions) == 0 {
			return subreconciler.ContinueReconciling()
		}

		if err := r.apply(ctx, actions); err != nil {
			r.logger.Error(err, "failed to apply corrective actions")
			return subreconciler.Requeue()
		}
	}

	r.logger.Info("state still divergent after corrective passes, requeueing")
	return r.updateReadyCondition(ctx, metav1.Condition{
		Type:    consts.ConditionReady,
		Status:  metav1.ConditionFalse,
		Reason:  consts.ReasonReconcileError,
		Message: "state still divergent after corrective passes",
	}, subreconciler.Requeue)
}

// apply executes the corrective actions in order: role before the user that
// references it, the user's password before the Secret asserting it.
func (r *Reconciler) apply(ctx context.Context, actions []action) error {
	for _, act := range actions {
		switch act.kind {
		case actionPutRole:
			r.logger.Info("updating role", "role", r.desired.RoleName)
			if err := r.esClient.PutRole(ctx, r.desired.RoleName, &r.desired.Role); err != nil {
				return err
			}
		case actionPutUser:
			r.logger.Info("creating user", "user", r.desired.Username)
			user := &esclient.User{
				Password: act.password,
				Roles:    []string{r.desired.RoleName},
				Metadata: map[string]string{consts.CreatedByMetadataKey: consts.CreatedByMetadataValue},
			}
			if err := r.esClient.PutUser(ctx, r.desired.Username, user); err != nil {
				return err
			}
		case actionCreateSecret:
			r.logger.Info("creating secret", "secret", r.desired.SecretName)
			secret, err := r.assembleSecret(act.password)
			if err != nil {
				return err
			}
			if err := r.Create(ctx, secret); err != nil {
				return err
			}
		case actionPatchSecret:
			r.logger.Info("restoring missing password key in secret", "secret", r.desired.SecretName)
			if err := r.patchSecretPassword(ctx, act.password); err != nil {
				return err
			}
		case actionResetPassword:
			r.logger.Info("resetting user password from secret", "user", r.desired.Username)
			if err := r.esClient.ChangePassword(ctx, r.desired.Username, act.password); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reconciler) updateStatus(ctx context.Context) (*ctrl.Result, error) {
	return r.updateReadyCondition(ctx, metav1.Condition{
		Type:    consts.ConditionReady,
		Status:  metav1.ConditionTrue,
		Reason:  consts.ReasonProvisioned,
		Message: "role, user and secret are in sync",
	}, subreconciler.ContinueReconciling)
}

// haltWithConfigError surfaces an invalid spec as a status condition and
// stops reconciling the resource until its spec changes. Configuration
// errors are not retried automatically.
func (r *Reconciler) haltWithConfigError(ctx context.Context, cause error) (*ctrl.Result, error) {
	r.logger.Info("configuration error", "error", cause.Error())
	return r.updateReadyCondition(ctx, metav1.Condition{
		Type:    consts.ConditionReady,
		Status:  metav1.ConditionFalse,
		Reason:  consts.ReasonConfigurationError,
		Message: cause.Error(),
	}, subreconciler.DoNotRequeue)
}

func (r *Reconciler) updateReadyCondition(
	ctx context.Context,
	condition metav1.Condition,
	then func() (*ctrl.Result, error),
) (*ctrl.Result, error) {
	status := *r.elasticsearchUser.Status.DeepCopy()
	status.ObservedGeneration = r.elasticsearchUser.Generation
	condition.ObservedGeneration = r.elasticsearchUser.Generation
	meta.SetStatusCondition(&status.Conditions, condition)

	if !apiequality.Semantic.DeepEqual(r.elasticsearchUser.Status, status) {
		r.elasticsearchUser.Status = status
		if err := r.Status().Update(ctx, r.elasticsearchUser); err != nil {
			if strings.Contains(err.Error(), genericregistry.OptimisticLockErrorMsg) {
				r.logger.Info("re-queuing item due to optimistic locking on resource", "error", err.Error())
			} else {
				r.logger.Error(err, "failed to update elasticsearchUser status")
			}
			return subreconciler.Requeue()
		}
	}

	return then()
}

func (r *Reconciler) assembleSecret(password string) (*corev1.Secret, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: r.elasticsearchUser.Namespace,
			Name:      r.desired.SecretName,
		},
		Data: map[string][]byte{
			consts.DataKeyURL:      []byte(r.esClient.URL()),
			consts.DataKeyUsername: []byte(r.desired.Username),
			consts.DataKeyPassword: []byte(password),
		},
	}

	if err := ctrl.SetControllerReference(r.elasticsearchUser, secret, r.scheme); err != nil {
		return nil, fmt.Errorf("failed to set secret owner reference: %w", err)
	}

	return secret, nil
}

// patchSecretPassword writes a password into an existing Secret, also fixing
// up the URL and username keys if they drifted. The password key is only ever
// written here when it was absent; an existing password stays authoritative.
func (r *Reconciler) patchSecretPassword(ctx context.Context, password string) error {
	secret := &corev1.Secret{}
	nn := types.NamespacedName{Namespace: r.elasticsearchUser.Namespace, Name: r.desired.SecretName}
	if err := r.Get(ctx, nn, secret); err != nil {
		return err
	}

	if secret.Data == nil {
		secret.Data = map[string][]byte{}
	}
	if len(secret.Data[consts.DataKeyPassword]) == 0 {
		secret.Data[consts.DataKeyPassword] = []byte(password)
	}
	secret.Data[consts.DataKeyURL] = []byte(r.esClient.URL())
	secret.Data[consts.DataKeyUsername] = []byte(r.desired.Username)

	return r.Update(ctx, secret)
}
