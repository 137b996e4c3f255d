// Package inbound exposes provider webhook surfaces over HTTP and routes each
// request to the handler registered for its provider.
package inbound
