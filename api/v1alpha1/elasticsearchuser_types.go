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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// UserPermission is the permission level granted on the index prefixes.
// Each level is a strict superset of the one below it.
// +kubebuilder:validation:Enum=Read;Write;Create
type UserPermission string

const (
	PermissionRead   UserPermission = "Read"
	PermissionWrite  UserPermission = "Write"
	PermissionCreate UserPermission = "Create"
)

// ElasticsearchUserSpec defines the desired state of ElasticsearchUser
type ElasticsearchUserSpec struct {
	// username of the Elasticsearch user. Must be unique across all
	// ElasticsearchUser objects tracked by the operator.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	Username string `json:"username"`

	// secretRef is the name of the Secret to write the credentials into.
	// Created in the same namespace as the ElasticsearchUser. Must be unique
	// across all ElasticsearchUser objects.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinLength=1
	SecretRef string `json:"secretRef"`

	// prefixes are the index-name prefixes the user gets access to. Each
	// prefix is expanded to the index pattern "<prefix>*".
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:MinItems=1
	Prefixes []string `json:"prefixes"`

	// permission granted on the indices matching the prefixes.
	// +kubebuilder:validation:Required
	Permission UserPermission `json:"permission"`
}

// ElasticsearchUserStatus defines the observed state of ElasticsearchUser
type ElasticsearchUserStatus struct {
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

//+kubebuilder:object:root=true
//+kubebuilder:subresource:status
//+kubebuilder:printcolumn:name="Username",type=string,JSONPath=`.spec.username`
//+kubebuilder:printcolumn:name="Permission",type=string,JSONPath=`.spec.permission`
//+kubebuilder:printcolumn:name="Ready",type=string,JSONPath=`.status.conditions[?(@.type=="Ready")].status`

// ElasticsearchUser is the Schema for the elasticsearchusers API
type ElasticsearchUser struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ElasticsearchUserSpec   `json:"spec,omitempty"`
	Status ElasticsearchUserStatus `json:"status,omitempty"`
}

//+kubebuilder:object:root=true

// ElasticsearchUserList contains a list of ElasticsearchUser
type ElasticsearchUserList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ElasticsearchUser `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ElasticsearchUser{}, &ElasticsearchUserList{})
}
