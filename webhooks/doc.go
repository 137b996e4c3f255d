// Package webhooks turns verified source-control webhook deliveries into relay
// submissions and maps relay outcomes back to HTTP answers.
package webhooks
