package elasticsearchuser

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/snapp-incubator/elasticsearch-user-operator/api/v1alpha1"
)

// registryRecycler periodically rebuilds the uniqueness registry from the
// live set of ElasticsearchUser objects, so records of resources deleted
// while the operator was down do not linger forever.
type registryRecycler struct {
	client   client.Client
	registry *registry
	interval time.Duration
	logger   logr.Logger
}

func (c *registryRecycler) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.recycle(ctx)
		}
	}
}

func (c *registryRecycler) recycle(ctx context.Context) {
	userList := &v1alpha1.ElasticsearchUserList{}
	if err := c.client.List(ctx, userList); err != nil {
		c.logger.Error(err, "failed to list elasticsearchusers, keeping current registry")
		return
	}
	c.registry.rebuild(userList.Items)
	c.logger.V(1).Info("rebuilt registry", "size", c.registry.size())
}

// NeedLeaderElection keeps the recycler from fighting a registry owned by
// another replica.
func (c *registryRecycler) NeedLeaderElection() bool {
	return true
}
