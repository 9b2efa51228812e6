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

package v1alpha1

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
)

var (
	elasticsearchuserlog = logf.Log.WithName("elasticsearchuser-resource")
	runtimeClient        client.Client

	ValidationTimeout time.Duration
)

func (eu *ElasticsearchUser) SetupWebhookWithManager(mgr ctrl.Manager) error {
	runtimeClient = mgr.GetClient()

	return ctrl.NewWebhookManagedBy(mgr).
		For(eu).
		Complete()
}

//+kubebuilder:webhook:path=/validate-elasticsearch-snappcloud-io-v1alpha1-elasticsearchuser,mutating=false,failurePolicy=fail,sideEffects=None,groups=elasticsearch.snappcloud.io,resources=elasticsearchusers,verbs=create;update,versions=v1alpha1,name=velasticsearchuser.kb.io,admissionReviewVersions=v1

var _ webhook.Validator = &ElasticsearchUser{}

func (eu *ElasticsearchUser) ValidateCreate() error {
	elasticsearchuserlog.Info("validate create", "name", eu.Name)
	return validateElasticsearchUser(eu)
}

func (eu *ElasticsearchUser) ValidateUpdate(old runtime.Object) error {
	elasticsearchuserlog.Info("validate update", "name", eu.Name)
	return validateElasticsearchUser(eu)
}

func (eu *ElasticsearchUser) ValidateDelete() error {
	return nil
}

// ValidateSpec checks the intrinsic validity of the spec. It is shared with
// the reconciler so the same rules hold when the webhook is disabled.
func (eu *ElasticsearchUser) ValidateSpec() error {
	if len(eu.Spec.Prefixes) == 0 {
		return fmt.Errorf("spec.prefixes must not be empty")
	}
	for _, prefix := range eu.Spec.Prefixes {
		if prefix == "" {
			return fmt.Errorf("spec.prefixes must not contain empty prefixes")
		}
	}
	switch eu.Spec.Permission {
	case PermissionRead, PermissionWrite, PermissionCreate:
	default:
		return fmt.Errorf("spec.permission %q is not one of Read, Write, Create", eu.Spec.Permission)
	}
	return nil
}

func validateElasticsearchUser(eu *ElasticsearchUser) error {
	if err := eu.ValidateSpec(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ValidationTimeout)
	defer cancel()

	return validateUniqueness(ctx, eu)
}

// validateUniqueness rejects a username or secretRef already claimed by
// another ElasticsearchUser anywhere in the cluster.
func validateUniqueness(ctx context.Context, eu *ElasticsearchUser) error {
	userList := &ElasticsearchUserList{}
	if err := runtimeClient.List(ctx, userList); err != nil {
		elasticsearchuserlog.Error(err, "failed to list elasticsearch users")
		return fmt.Errorf("internal error")
	}

	for i := range userList.Items {
		other := &userList.Items[i]
		if other.Namespace == eu.Namespace && other.Name == eu.Name {
			continue
		}
		if other.Spec.Username == eu.Spec.Username {
			return fmt.Errorf(
				"spec.username %q is already in use by %s/%s",
				eu.Spec.Username, other.Namespace, other.Name,
			)
		}
		if other.Namespace == eu.Namespace && other.Spec.SecretRef == eu.Spec.SecretRef {
			return fmt.Errorf(
				"spec.secretRef %q is already in use by %s/%s",
				eu.Spec.SecretRef, other.Namespace, other.Name,
			)
		}
	}

	return nil
}
