package elasticsearchuser

// This package contains the controller for provisioning and cleaning up
// Elasticsearch roles, users, and credential Secrets.
//
// controller.go sets up the controller with the manager and registers the
// registry recycler runnable.
//
// handler.go is the entrypoint for the reconciliation logic. It decides to
// provision the required resources or to clean up the already provisioned
// resources. The key for this decision is the deletionTimestamp of the
// ElasticsearchUser being reconciled.

// Overall provisioning flow:
//
// 1. Add the cleanup finalizer (before anything else, so deletion can never
//    bypass cleanup)
// 2. Admit the resource into the registry (unique username and secretRef)
// 3. Build the desired role policy, user descriptor, and Secret shape
// 4. Fetch the observed state (role, user, Secret, login probe), compute the
//    corrective actions, and apply them in order; verify with a second pass
// 5. Update the status of the ElasticsearchUser

// Overall cleanup flow:
//
// 1. Remove the Elasticsearch user
// 2. Remove the Elasticsearch role
// 3. Remove the credentials Secret
// 4. Drop the registry record
// 5. Remove the cleanup finalizer
//
// The keep annotation skips steps 1-3 so externally useful credentials can
// survive the ElasticsearchUser object.
