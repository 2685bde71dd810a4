package server

// Logger is the narrow logging capability the dispatch loop depends on,
// kept separate from the concrete logging package so the loop isn't tied
// to a specific logger implementation and tests can swap in a recorder.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}
