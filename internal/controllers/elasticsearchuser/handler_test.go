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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	esv1alpha1 "github.com/snapp-incubator/elasticsearch-user-operator/api/v1alpha1"
	"github.com/snapp-incubator/elasticsearch-user-operator/pkg/consts"
)

var _ = Describe("ElasticsearchUser Controller", func() {
	const namespace = "default"

	var ctx = context.Background()

	newElasticsearchUser := func(name, username, secretRef string) *esv1alpha1.ElasticsearchUser {
		return &esv1alpha1.ElasticsearchUser{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
			},
			Spec: esv1alpha1.ElasticsearchUserSpec{
				Username:   username,
				SecretRef:  secretRef,
				Prefixes:   []string{"app-logs-"},
				Permission: esv1alpha1.PermissionWrite,
			},
		}
	}

	getSecret := func(g Gomega, name string) *corev1.Secret {
		secret := &corev1.Secret{}
		g.Expect(k8sClient.Get(
			ctx,
			types.NamespacedName{Name: name, Namespace: namespace},
			secret,
		)).To(Succeed())
		return secret
	}

	waitGone := func(user *esv1alpha1.ElasticsearchUser) {
		Eventually(func(g Gomega) {
			err := k8sClient.Get(
				ctx,
				types.NamespacedName{Name: user.Name, Namespace: namespace},
				&esv1alpha1.ElasticsearchUser{},
			)
			g.Expect(apierrors.IsNotFound(err)).To(BeTrue())
		}).WithTimeout(10 * time.Second).Should(Succeed())
	}

	Context("When creating a new ElasticsearchUser", func() {
		const (
			username   = "app-alice"
			secretName = "alice-credentials"
		)
		var elasticsearchUser *esv1alpha1.ElasticsearchUser

		BeforeEach(func() {
			elasticsearchUser = newElasticsearchUser("test-alice", username, secretName)
			Expect(k8sClient.Create(ctx, elasticsearchUser)).To(Succeed())
		})

		AfterEach(func() {
			Expect(k8sClient.Delete(ctx, elasticsearchUser)).To(Succeed())
			waitGone(elasticsearchUser)
		})

		It("Should create the role", func() {
			Eventually(func(g Gomega) {
				role, found, err := esFake.GetRole(ctx, consts.RolePrefix+username)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(found).To(BeTrue())
				g.Expect(role.Indices).To(HaveLen(1))
				g.Expect(role.Indices[0].Names).To(ConsistOf("app-logs-*"))
				g.Expect(role.Indices[0].Privileges).To(ConsistOf("read", "write"))
			}).Should(Succeed())
		})

		It("Should create the user with the role attached", func() {
			Eventually(func(g Gomega) {
				user, found, err := esFake.GetUser(ctx, username)
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(found).To(BeTrue())
				g.Expect(user.Roles).To(ConsistOf(consts.RolePrefix + username))
			}).Should(Succeed())
		})

		It("Should create a secret holding working credentials", func() {
			Eventually(func(g Gomega) {
				secret := getSecret(g, secretName)
				g.Expect(secret.Data[consts.DataKeyURL]).To(Equal([]byte(esFake.URL())))
				g.Expect(secret.Data[consts.DataKeyUsername]).To(Equal([]byte(username)))
				g.Expect(secret.Data[consts.DataKeyPassword]).NotTo(BeEmpty())

				ok, err := esFake.Login(ctx, username, string(secret.Data[consts.DataKeyPassword]))
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(ok).To(BeTrue())
			}).Should(Succeed())
		})

		It("Should mark the object ready", func() {
			Eventually(func(g Gomega) {
				got := &esv1alpha1.ElasticsearchUser{}
				g.Expect(k8sClient.Get(
					ctx,
					types.NamespacedName{Name: elasticsearchUser.Name, Namespace: namespace},
					got,
				)).To(Succeed())
				g.Expect(meta.IsStatusConditionTrue(got.Status.Conditions, consts.ConditionReady)).To(BeTrue())
				g.Expect(got.Status.ObservedGeneration).To(Equal(got.Generation))
			}).Should(Succeed())
		})
	})

	Context("When the Elasticsearch password drifts from the secret", func() {
		const (
			username   = "app-bob"
			secretName = "bob-credentials"
		)
		var elasticsearchUser *esv1alpha1.ElasticsearchUser

		BeforeEach(func() {
			elasticsearchUser = newElasticsearchUser("test-bob", username, secretName)
			Expect(k8sClient.Create(ctx, elasticsearchUser)).To(Succeed())

			Eventually(func(g Gomega) {
				getSecret(g, secretName)
			}).Should(Succeed())
		})

		AfterEach(func() {
			Expect(k8sClient.Delete(ctx, elasticsearchUser)).To(Succeed())
			waitGone(elasticsearchUser)
		})

		It("Should reset the password back to the secret's value", func() {
			Expect(esFake.ChangePassword(ctx, username, "drifted-out-of-band")).To(Succeed())

			// Nudge a reconcile instead of waiting out the resync interval.
			Eventually(func(g Gomega) {
				got := &esv1alpha1.ElasticsearchUser{}
				g.Expect(k8sClient.Get(
					ctx,
					types.NamespacedName{Name: elasticsearchUser.Name, Namespace: namespace},
					got,
				)).To(Succeed())
				if got.Labels == nil {
					got.Labels = map[string]string{}
				}
				got.Labels["test-drift"] = "true"
				g.Expect(k8sClient.Update(ctx, got)).To(Succeed())
			}).Should(Succeed())

			Eventually(func(g Gomega) {
				secret := getSecret(g, secretName)
				ok, err := esFake.Login(ctx, username, string(secret.Data[consts.DataKeyPassword]))
				g.Expect(err).NotTo(HaveOccurred())
				g.Expect(ok).To(BeTrue())
			}).WithTimeout(10 * time.Second).Should(Succeed())
		})
	})

	Context("When two objects claim the same username", func() {
		var first, second *esv1alpha1.ElasticsearchUser

		BeforeEach(func() {
			first = newElasticsearchUser("test-carol", "app-carol", "carol-credentials")
			Expect(k8sClient.Create(ctx, first)).To(Succeed())

			Eventually(func(g Gomega) {
				got := &esv1alpha1.ElasticsearchUser{}
				g.Expect(k8sClient.Get(
					ctx,
					types.NamespacedName{Name: first.Name, Namespace: namespace},
					got,
				)).To(Succeed())
				g.Expect(meta.IsStatusConditionTrue(got.Status.Conditions, consts.ConditionReady)).To(BeTrue())
			}).Should(Succeed())

			second = newElasticsearchUser("test-carol-dup", "app-carol", "carol-dup-credentials")
			Expect(k8sClient.Create(ctx, second)).To(Succeed())
		})

		AfterEach(func() {
			Expect(k8sClient.Delete(ctx, second)).To(Succeed())
			waitGone(second)
			Expect(k8sClient.Delete(ctx, first)).To(Succeed())
			waitGone(first)
		})

		It("Should report a configuration error on the later claimant", func() {
			Eventually(func(g Gomega) {
				got := &esv1alpha1.ElasticsearchUser{}
				g.Expect(k8sClient.Get(
					ctx,
					types.NamespacedName{Name: second.Name, Namespace: namespace},
					got,
				)).To(Succeed())

				condition := meta.FindStatusCondition(got.Status.Conditions, consts.ConditionReady)
				g.Expect(condition).NotTo(BeNil())
				g.Expect(condition.Status).To(Equal(metav1.ConditionFalse))
				g.Expect(condition.Reason).To(Equal(consts.ReasonConfigurationError))
			}).Should(Succeed())

			// The first holder stays untouched and no second secret appears.
			_, found, err := esFake.GetUser(ctx, "app-carol")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			err = k8sClient.Get(
				ctx,
				types.NamespacedName{Name: "carol-dup-credentials", Namespace: namespace},
				&corev1.Secret{},
			)
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Context("When deleting an ElasticsearchUser", func() {
		const (
			username   = "app-dave"
			secretName = "dave-credentials"
		)
		var elasticsearchUser *esv1alpha1.ElasticsearchUser

		BeforeEach(func() {
			elasticsearchUser = newElasticsearchUser("test-dave", username, secretName)
			Expect(k8sClient.Create(ctx, elasticsearchUser)).To(Succeed())

			Eventually(func(g Gomega) {
				getSecret(g, secretName)
			}).Should(Succeed())
		})

		It("Should remove the user, the role and the secret", func() {
			Expect(k8sClient.Delete(ctx, elasticsearchUser)).To(Succeed())
			waitGone(elasticsearchUser)

			_, found, err := esFake.GetUser(ctx, username)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())

			_, found, err = esFake.GetRole(ctx, consts.RolePrefix+username)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeFalse())

			err = k8sClient.Get(
				ctx,
				types.NamespacedName{Name: secretName, Namespace: namespace},
				&corev1.Secret{},
			)
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})
	})

	Context("When deleting an ElasticsearchUser with the keep annotation", func() {
		const (
			username   = "app-erin"
			secretName = "erin-credentials"
		)
		var elasticsearchUser *esv1alpha1.ElasticsearchUser

		BeforeEach(func() {
			elasticsearchUser = newElasticsearchUser("test-erin", username, secretName)
			elasticsearchUser.Annotations = map[string]string{consts.KeepAnnotation: "true"}
			Expect(k8sClient.Create(ctx, elasticsearchUser)).To(Succeed())

			Eventually(func(g Gomega) {
				getSecret(g, secretName)
			}).Should(Succeed())
		})

		AfterEach(func() {
			_, err := esFake.DeleteUser(ctx, username)
			Expect(err).NotTo(HaveOccurred())
			_, err = esFake.DeleteRole(ctx, consts.RolePrefix+username)
			Expect(err).NotTo(HaveOccurred())
			Expect(k8sClient.Delete(ctx, &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: secretName, Namespace: namespace},
			})).To(Succeed())
		})

		It("Should retain the user, the role and the secret", func() {
			Expect(k8sClient.Delete(ctx, elasticsearchUser)).To(Succeed())
			waitGone(elasticsearchUser)

			_, found, err := esFake.GetUser(ctx, username)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())

			_, found, err = esFake.GetRole(ctx, consts.RolePrefix+username)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())

			Expect(k8sClient.Get(
				ctx,
				types.NamespacedName{Name: secretName, Namespace: namespace},
				&corev1.Secret{},
			)).To(Succeed())
		})
	})
})
