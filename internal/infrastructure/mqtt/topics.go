package mqtt

import "strings"

// DefaultTopicPrefix is used when no topic_prefix is configured.
const DefaultTopicPrefix = "hsm"

// Topics builds the MQTT topics used for archive events.
//
//	topics := mqtt.NewTopics("hsm")
//	topics.ArchiveEvent(archive.OpRelease) // "hsm/archive/release"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Surrounding slashes are
// trimmed; an empty prefix means DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.prefix
}

// ArchiveEvent returns the topic for one operation's events.
//
// Example: hsm/archive/register
func (t Topics) ArchiveEvent(op string) string {
	return t.prefix + "/archive/" + op
}

// AllArchiveEvents returns a pattern matching every archive event.
//
// Pattern: hsm/archive/+
func (t Topics) AllArchiveEvents() string {
	return t.prefix + "/archive/+"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: hsm/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}
