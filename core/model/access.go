package model

import "fmt"

// Permission is an ACL access level.
type Permission string

const (
	PermRead  Permission = "read"
	PermWrite Permission = "write"
)

// Credential is the broker login of a device.
type Credential struct {
	Username     string
	PasswordHash string
}

// AccessRule grants Permission on Topic to Username.
type AccessRule struct {
	Username   string
	Topic      string
	Permission Permission
}

func (r AccessRule) String() string {
	return fmt.Sprintf("%s %s %s", r.Username, r.Permission, r.Topic)
}

// RulesFor returns the complete rule set of a device: write on status and
// telemetry, read on command.
func RulesFor(deviceID, username string) []AccessRule {
	t := TopicsFor(deviceID)
	return []AccessRule{
		{Username: username, Topic: t.Status, Permission: PermWrite},
		{Username: username, Topic: t.Telemetry, Permission: PermWrite},
		{Username: username, Topic: t.Command, Permission: PermRead},
	}
}
