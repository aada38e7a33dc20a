// Package conformance drives the actorctl binary through txtar script
// transcripts, the way the teacher verified CLI behavior end to end rather
// than only unit-testing individual packages.
package conformance

import "rsc.io/script"

// NewEngine returns a script.Engine carrying the standard command and
// condition set — cp, mkdir, exec, stdout/stderr matching, and so on — with
// no actorcore-specific additions. Transcripts invoke the CLI under test
// through the standard exec command, against a actorctl binary placed on
// PATH by the test harness.
func NewEngine() *script.Engine {
	e := script.NewEngine()
	for name, cmd := range script.DefaultCmds() {
		e.Cmds[name] = cmd
	}
	for name, cond := range script.DefaultConds() {
		e.Conds[name] = cond
	}
	return e
}
