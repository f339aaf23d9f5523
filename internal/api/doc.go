// Package api is the REST client for the bar backend.
//
// Every call is a single attempt. Non-success responses, network failures
// and undecodable bodies all surface as *TransportError; callers decide
// whether to retry. Each request carries the bearer credential and a
// time-ordered X-Request-ID for correlation with backend logs.
package api
