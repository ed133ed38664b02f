// Package infra contains technical adapters such as the MQTT connection,
// the MAVLink link, broker file stores and metrics exporters. These
// packages should depend only on the interfaces defined in the core
// packages.
package infra
