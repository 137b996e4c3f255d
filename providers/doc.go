// Package providers groups the downstream chat sinks a relay can deliver to.
// Each subpackage implements core.Sink for one chat service.
package providers
