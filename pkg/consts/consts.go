package consts

const (
	// Keys of the credentials Secret written next to each ElasticsearchUser.
	DataKeyURL      = "ELASTICSEARCH_URL"
	DataKeyUsername = "ELASTICSEARCH_USERNAME"
	DataKeyPassword = "ELASTICSEARCH_PASSWORD"

	FinalizerPrefix                   = "elasticsearch.snappcloud.io/"
	ElasticsearchUserCleanupFinalizer = FinalizerPrefix + "cleanup-elasticsearchuser"

	// KeepAnnotation set to "true" leaves the Elasticsearch role/user and the
	// Secret in place when the ElasticsearchUser is deleted.
	KeepAnnotation = FinalizerPrefix + "keep"

	RolePrefix = "role-"

	ConditionReady = "Ready"

	ReasonProvisioned        = "Provisioned"
	ReasonConfigurationError = "ConfigurationError"
	ReasonReconcileError     = "ReconcileError"

	SuperuserRole = "superuser"

	CreatedByMetadataKey   = "created-by"
	CreatedByMetadataValue = "elasticsearch-user-operator"
)
