package config

const (
	// TopicTransformTask is the NSQ topic for submitted transformation jobs.
	TopicTransformTask = "transform.task"

	// TopicTransformResult is the NSQ topic for terminal job outcomes (success/partial/failure).
	TopicTransformResult = "transform.result"
)
