package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "que"

// Topics builds que-core MQTT topics under a configurable prefix.
//
// Hierarchy:
//
//	{prefix}/status                  retained online/offline (LWT)
//	{prefix}/state/{serial}/{path}   retained attribute value
//	{prefix}/refresh/{serial}        poll statistics per refresh
//	{prefix}/command/{serial}        inbound command requests
//	{prefix}/ack/{serial}            command results
type Topics struct {
	Prefix string
}

// NewTopics returns Topics rooted at prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Status returns the service status topic.
//
// Example: que/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// State returns the retained state topic for one attribute. The attribute
// path is kept as a single topic level.
//
// Example: que/state/ABC123/RemoteZoneInfo.[2].LiveTemp_oC
func (t Topics) State(serial, path string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix(), level(serial), level(path))
}

// Refresh returns the topic carrying refresh statistics for a system.
//
// Example: que/refresh/ABC123
func (t Topics) Refresh(serial string) string {
	return fmt.Sprintf("%s/refresh/%s", t.prefix(), level(serial))
}

// Command returns the inbound command topic for a system.
//
// Example: que/command/ABC123
func (t Topics) Command(serial string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), level(serial))
}

// Ack returns the command result topic for a system.
//
// Example: que/ack/ABC123
func (t Topics) Ack(serial string) string {
	return fmt.Sprintf("%s/ack/%s", t.prefix(), level(serial))
}

// AllCommands matches the command topic of every system.
//
// Pattern: que/command/+
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+"
}

// AllStates matches every attribute state topic of one system.
//
// Pattern: que/state/ABC123/+
func (t Topics) AllStates(serial string) string {
	return fmt.Sprintf("%s/state/%s/+", t.prefix(), level(serial))
}

// CommandSerial extracts the serial from a command topic.
func (t Topics) CommandSerial(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// level makes s safe to use as a single topic level. Wildcards and
// separators are replaced with underscores.
func level(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, s)
}
