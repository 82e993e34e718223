package database

import "strings"

// unsafeTokens are matched case-sensitively anywhere in a traversal script.
var unsafeTokens = []string{
	// process invocation
	"System.", "Runtime", "ProcessBuilder", ".execute(",
	// class loading
	"Class.forName", "ClassLoader", "getClass", ".class",
	// dynamic evaluation
	"eval(", "Eval.", "GroovyShell", "evaluate(",
	// reflection
	"constructor", "newInstance", "getDeclared",
	// host io and threads
	"java.io", "java.nio", "Thread", "File(",
}

// IsUnsafe reports whether script contains a denylisted token. This is a
// coarse lexical guard against script-engine escapes, not a security
// boundary; the step grammar is the stricter check.
func IsUnsafe(script string) bool {
	for _, tok := range unsafeTokens {
		if strings.Contains(script, tok) {
			return true
		}
	}
	return false
}
