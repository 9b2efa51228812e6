package elasticsearchuser

import (
	"context"

	"github.com/opdev/subreconciler"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	"github.com/snapp-incubator/elasticsearch-user-operator/pkg/consts"
)

// Cleanup deprovisions the Elasticsearch user and role and removes the
// credentials Secret for a deleted elasticsearchUser object. The finalizer
// comes off last, so a failed step keeps the object around for a retry.
// The keep annotation skips deprovisioning and only releases bookkeeping.
func (r *Reconciler) Cleanup(ctx context.Context) (ctrl.Result, error) {
	var subrecs []subreconciler.Fn
	_, keep := r.elasticsearchUser.Annotations[consts.KeepAnnotation]
	if keep {
		r.logger.Info("keep annotation set, retaining role, user and secret")
	}
	// A resource that never got past a username or secretRef collision owns
	// nothing; deprovisioning here would tear down the actual holder's state.
	if heldByOther := r.registry.heldByOther(r.elasticsearchUser); keep || heldByOther {
		subrecs = []subreconciler.Fn{
			r.forgetRegistry,
			r.removeCleanupFinalizer,
		}
	} else {
		subrecs = []subreconciler.Fn{
			r.removeElasticUser,
			r.removeElasticRole,
			r.removeSecret,
			r.forgetRegistry,
			r.removeCleanupFinalizer,
		}
	}
	for _, subrec := range subrecs {
		result, err := subrec(ctx)
		if subreconciler.ShouldHaltOrRequeue(result, err) {
			return subreconciler.Evaluate(result, err)
		}
	}
	return subreconciler.Evaluate(subreconciler.DoNotRequeue())
}

func (r *Reconciler) removeElasticUser(ctx context.Context) (*ctrl.Result, error) {
	existed, err := r.esClient.DeleteUser(ctx, r.elasticsearchUser.Spec.Username)
	if err != nil {
		r.logger.Error(err, "failed to delete user", "user", r.elasticsearchUser.Spec.Username)
		return subreconciler.Requeue()
	}
	if existed {
		r.logger.Info("deleted user", "user", r.elasticsearchUser.Spec.Username)
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) removeElasticRole(ctx context.Context) (*ctrl.Result, error) {
	roleName := consts.RolePrefix + r.elasticsearchUser.Spec.Username
	existed, err := r.esClient.DeleteRole(ctx, roleName)
	if err != nil {
		r.logger.Error(err, "failed to delete role", "role", roleName)
		return subreconciler.Requeue()
	}
	if existed {
		r.logger.Info("deleted role", "role", roleName)
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) removeSecret(ctx context.Context) (*ctrl.Result, error) {
	secret := &corev1.Secret{}
	nn := types.NamespacedName{
		Namespace: r.elasticsearchUser.Namespace,
		Name:      r.elasticsearchUser.Spec.SecretRef,
	}
	switch err := r.Get(ctx, nn, secret); {
	case errors.IsNotFound(err):
		return subreconciler.ContinueReconciling()
	case err != nil:
		r.logger.Error(err, "failed to get secret", "secret", nn.Name)
		return subreconciler.Requeue()
	}

	if err := r.Delete(ctx, secret); err != nil && !errors.IsNotFound(err) {
		r.logger.Error(err, "failed to delete secret", "secret", nn.Name)
		return subreconciler.Requeue()
	}
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) forgetRegistry(_ context.Context) (*ctrl.Result, error) {
	r.registry.forget(r.elasticsearchUser.UID)
	return subreconciler.ContinueReconciling()
}

func (r *Reconciler) removeCleanupFinalizer(ctx context.Context) (*ctrl.Result, error) {
	if objUpdated := controllerutil.RemoveFinalizer(r.elasticsearchUser, consts.ElasticsearchUserCleanupFinalizer); objUpdated {
		if err := r.Update(ctx, r.elasticsearchUser); err != nil {
			r.logger.Error(err, "failed to remove cleanup finalizer")
			return subreconciler.Requeue()
		}
	}
	return subreconciler.ContinueReconciling()
}
