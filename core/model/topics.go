package model

import "strings"

const topicPrefix = "drone"

// DeviceTopics holds the three bus topics owned by a device.
type DeviceTopics struct {
	Status    string
	Telemetry string
	Command   string
}

// TopicsFor derives the topic set for deviceID. Bridges and ACL rules must
// both go through this function so the strings always match.
func TopicsFor(deviceID string) DeviceTopics {
	base := topicPrefix + "/" + deviceID
	return DeviceTopics{
		Status:    base + "/status",
		Telemetry: base + "/telemetry",
		Command:   base + "/command",
	}
}

// UsernameFor derives the broker username assigned to deviceID.
func UsernameFor(deviceID string) string {
	return "drone_" + strings.ToLower(deviceID)
}

// DeviceIDFromTopic extracts the device id from a drone/<id>/<leaf> topic.
func DeviceIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, topicPrefix+"/")
	if !ok {
		return "", false
	}
	id, leaf, ok := strings.Cut(rest, "/")
	if !ok || id == "" || leaf == "" || strings.ContainsAny(id, "+#") {
		return "", false
	}
	return id, true
}
