// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing inbound realtime events, agent
// graphs and recording outbound commands. They are not intended for
// production usage.
package testutil
