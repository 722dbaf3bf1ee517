package event

import "fmt"

// Topic builds a topic name following the {domain}.{entity}.{action}
// convention, e.g. Topic("crm", "customer", "created").
func Topic(domain, entity, action string) string {
	return fmt.Sprintf("%s.%s.%s", domain, entity, action)
}

// DLQTopic builds the dead-letter topic for a source topic and consumer
// group: {topic}.dlq.{consumer_group}. Each group gets its own sink so one
// group's poison messages never pollute another's.
func DLQTopic(topic, consumerGroup string) string {
	return fmt.Sprintf("%s.dlq.%s", topic, consumerGroup)
}
