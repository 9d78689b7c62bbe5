package shared

const (
	ProjectID = "quantified-self-io" // Can be overridden by env var in bootstrap

	// ServiceNameGarminHealthAPI tags queue items and event metadata produced
	// by the Garmin Health API integration.
	ServiceNameGarminHealthAPI = "GarminHealthAPI"

	TopicEventImported     = "topic-event-imported"
	TopicEventImportFailed = "topic-event-import-failed"

	CollectionUsers       = "users"
	CollectionEvents      = "events"
	CollectionMetaData    = "metaData"
	CollectionGarminQueue = "garminHealthAPIActivityQueue"
	CollectionGarminToken = "garminHealthAPITokens"
)
