/*
Copyright 2023.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package elasticsearchuser

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/opdev/subreconciler"
	"github.com/sethvargo/go-password/password"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	esv1alpha1 "github.com/snapp-incubator/elasticsearch-user-operator/api/v1alpha1"
	"github.com/snapp-incubator/elasticsearch-user-operator/internal/config"
	"github.com/snapp-incubator/elasticsearch-user-operator/internal/esclient"
)

type Reconciler struct {
	client.Client
	scheme   *runtime.Scheme
	logger   logr.Logger
	esClient esclient.Client
	registry *registry

	// reconcile specific variables
	elasticsearchUser *esv1alpha1.ElasticsearchUser
	desired           *desiredState

	// configurations
	passwordLength       int
	resyncInterval       time.Duration
	cacheRecycleInterval time.Duration
}

func NewReconciler(mgr manager.Manager, cfg *config.Config, esClient esclient.Client) *Reconciler {
	return &Reconciler{
		Client:   mgr.GetClient(),
		scheme:   mgr.GetScheme(),
		esClient: esClient,
		registry: newRegistry(),

		passwordLength:       cfg.PasswordLength,
		resyncInterval:       cfg.ResyncInterval,
		cacheRecycleInterval: cfg.CacheRecycleInterval,
	}
}

//+kubebuilder:rbac:groups=elasticsearch.snappcloud.io,resources=elasticsearchusers,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=elasticsearch.snappcloud.io,resources=elasticsearchusers/status,verbs=get;update;patch
//+kubebuilder:rbac:groups=elasticsearch.snappcloud.io,resources=elasticsearchusers/finalizers,verbs=update
//+kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create;update;patch;delete

func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	r.logger = log.FromContext(ctx)
	r.elasticsearchUser = &esv1alpha1.ElasticsearchUser{}
	r.desired = nil

	// Fetch the object
	switch err := r.Get(ctx, req.NamespacedName, r.elasticsearchUser); {
	case apierrors.IsNotFound(err):
		// Gone without cleanup running here, e.g. the finalizer was removed
		// by hand. Drop the bookkeeping; external state is left as-is.
		r.registry.forgetName(req.NamespacedName)
		return subreconciler.Evaluate(subreconciler.DoNotRequeue())
	case err != nil:
		r.logger.Error(err, "failed to fetch object")
		return subreconciler.Evaluate(subreconciler.Requeue())
	}

	if r.elasticsearchUser.ObjectMeta.DeletionTimestamp != nil {
		return r.Cleanup(ctx)
	}

	return r.Provision(ctx)
}

// newPassword generates a random credential: letters and digits only, the
// shape Elasticsearch accepts everywhere and shells tolerate in env vars.
func (r *Reconciler) newPassword() (string, error) {
	return password.Generate(r.passwordLength, r.passwordLength/4, 0, false, true)
}
