// Package events defines the events emitted by the bridges. Producers
// publish them on an eventbus.Bus[events.Event]; consumers such as the
// metrics collector type-switch on the concrete value.
package events
