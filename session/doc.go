// Package session persists conversation history per session so a chat can
// resume where it left off. Store is the contract; InMemoryStore backs tests
// and one-shot CLI runs, and the sqlite sub-package backs long running
// deployments.
//
// Messages are append-only. A store never rewrites or reorders history.
package session
