// Package agent contains the worker implementation and the registry that
// builds workers from a declarative agents file.
//
//  1. ModelAgent: a language model bound to a fixed tool set, running a
//     bounded tool-calling loop per invocation
//  2. Registry: name -> Factory mapping; unknown names get a bare ModelAgent
//  3. Instruction: static or provider-backed prompt text rendered with
//     text/template ({{.now}}, {{.agent}})
//
// Workers hold no per-run state. A single Agents set may serve concurrent
// runs, each owning its own core.State.
package agent
