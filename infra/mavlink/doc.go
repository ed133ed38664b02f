// Package mavlink implements the vehicle link on top of gomavlib. It opens
// serial, TCP or UDP endpoints, waits for the first heartbeat and exposes a
// mutex-guarded non-blocking receive and fire-and-forget COMMAND_LONG send.
package mavlink
