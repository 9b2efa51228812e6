package elasticsearchuser

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/types"

	esv1alpha1 "github.com/snapp-incubator/elasticsearch-user-operator/api/v1alpha1"
)

// resourceRecord is the cached bookkeeping for one tracked ElasticsearchUser.
type resourceRecord struct {
	uid              types.UID
	name             types.NamespacedName
	username         string
	secretRef        types.NamespacedName
	generation       int64
	lastReconciledAt time.Time
}

// collisionError reports a username or secretRef already claimed by an older
// ElasticsearchUser. It is a configuration error, not a retryable one.
type collisionError struct {
	field  string
	value  string
	holder types.NamespacedName
}

func (e *collisionError) Error() string {
	return fmt.Sprintf("%s %q is already in use by %s", e.field, e.value, e.holder)
}

// registry tracks all ElasticsearchUsers the controller has admitted, with
// unique indexes on username and secretRef. The first admitted holder of a
// key stays authoritative; later claimants are rejected.
type registry struct {
	mu          sync.Mutex
	byUID       map[types.UID]*resourceRecord
	byUsername  map[string]types.UID
	bySecretRef map[types.NamespacedName]types.UID
}

func newRegistry() *registry {
	return &registry{
		byUID:       map[types.UID]*resourceRecord{},
		byUsername:  map[string]types.UID{},
		bySecretRef: map[types.NamespacedName]types.UID{},
	}
}

// admit inserts or refreshes the record for the given resource. A username or
// secretRef held by a different resource yields a collisionError.
func (g *registry) admit(user *esv1alpha1.ElasticsearchUser) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admitLocked(user)
}

func (g *registry) admitLocked(user *esv1alpha1.ElasticsearchUser) error {
	name := types.NamespacedName{Namespace: user.Namespace, Name: user.Name}
	secretRef := types.NamespacedName{Namespace: user.Namespace, Name: user.Spec.SecretRef}

	if holderUID, ok := g.byUsername[user.Spec.Username]; ok && holderUID != user.UID {
		return &collisionError{
			field:  "username",
			value:  user.Spec.Username,
			holder: g.byUID[holderUID].name,
		}
	}
	if holderUID, ok := g.bySecretRef[secretRef]; ok && holderUID != user.UID {
		return &collisionError{
			field:  "secretRef",
			value:  user.Spec.SecretRef,
			holder: g.byUID[holderUID].name,
		}
	}

	record := &resourceRecord{
		uid:        user.UID,
		name:       name,
		username:   user.Spec.Username,
		secretRef:  secretRef,
		generation: user.Generation,
	}
	// A changed spec releases the previously held keys.
	if prev, ok := g.byUID[user.UID]; ok {
		delete(g.byUsername, prev.username)
		delete(g.bySecretRef, prev.secretRef)
		record.lastReconciledAt = prev.lastReconciledAt
	}
	g.byUID[user.UID] = record
	g.byUsername[record.username] = user.UID
	g.bySecretRef[record.secretRef] = user.UID
	return nil
}

// heldByOther reports whether the resource's username or secretRef is
// currently held by a different resource.
func (g *registry) heldByOther(user *esv1alpha1.ElasticsearchUser) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if holderUID, ok := g.byUsername[user.Spec.Username]; ok && holderUID != user.UID {
		return true
	}
	secretRef := types.NamespacedName{Namespace: user.Namespace, Name: user.Spec.SecretRef}
	if holderUID, ok := g.bySecretRef[secretRef]; ok && holderUID != user.UID {
		return true
	}
	return false
}

// markReconciled stamps a successful reconciliation pass.
func (g *registry) markReconciled(uid types.UID, generation int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if record, ok := g.byUID[uid]; ok {
		record.generation = generation
		record.lastReconciledAt = time.Now()
	}
}

func (g *registry) forget(uid types.UID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forgetLocked(uid)
}

func (g *registry) forgetLocked(uid types.UID) {
	record, ok := g.byUID[uid]
	if !ok {
		return
	}
	delete(g.byUsername, record.username)
	delete(g.bySecretRef, record.secretRef)
	delete(g.byUID, uid)
}

// forgetName drops the record for a resource that vanished without its UID
// being known anymore.
func (g *registry) forgetName(name types.NamespacedName) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for uid, record := range g.byUID {
		if record.name == name {
			g.forgetLocked(uid)
			return
		}
	}
}

// rebuild discards the whole registry and re-admits the given listing, oldest
// resource first so the original holder of a colliding key wins again.
// Collisions during rebuild are dropped silently; the owning resource reports
// them on its next reconciliation.
func (g *registry) rebuild(items []esv1alpha1.ElasticsearchUser) {
	sorted := make([]esv1alpha1.ElasticsearchUser, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if !a.CreationTimestamp.Equal(&b.CreationTimestamp) {
			return a.CreationTimestamp.Before(&b.CreationTimestamp)
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Name < b.Name
	})

	g.mu.Lock()
	defer g.mu.Unlock()

	g.byUID = map[types.UID]*resourceRecord{}
	g.byUsername = map[string]types.UID{}
	g.bySecretRef = map[types.NamespacedName]types.UID{}
	for i := range sorted {
		_ = g.admitLocked(&sorted[i])
	}
}

func (g *registry) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byUID)
}
