// Package testutil contains helper builders, scripted policies and fake
// workers used across tests to reduce boilerplate when driving the router
// and the executor. They are not intended for production usage.
package testutil
