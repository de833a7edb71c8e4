package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicFilingsIngest carries filing ingestion jobs
	TopicFilingsIngest = "filings.ingest"
	// TopicFilingsIngested carries ingestion results
	TopicFilingsIngested = "filings.ingested"
)
