// Package supervisor implements the routing layer: a decision Node that
// picks the next worker (or Terminal) from the full conversation, and a
// Graph that cycles supervisor -> worker -> supervisor until Terminal.
//
// Workers only see the trailing slice of the state (the supervisor's task
// message by default). Their answers are appended as messages authored by
// the worker's name, so every decision is recomputed from the full,
// attributed log.
package supervisor
