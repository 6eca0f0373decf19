// Package session provides SessionStore implementations: a process-local
// in-memory store for tests and demos, and a Redis backed store for
// production where any stateless worker may service any request.
package session
