// Package mosquitto maintains the broker's password and ACL files.
//
// Both files are rewritten whole from an in-memory model and swapped in
// atomically, so repeated writes for the same user never accumulate
// duplicate lines. Callers serialize writers.
package mosquitto
