// Package gitignore matches paths against .gitignore-syntax ignore rules.
//
// bmsync reads both .gitignore and .bmignore files with the same matcher;
// the filename only changes which rules a scan picks up, not how they're
// parsed or matched.
//
// Supported syntax:
//   - literal and glob patterns (*.log, temp/)
//   - wildcards (*, ?, **)
//   - root-anchored patterns (/build)
//   - negation (!important.log)
//   - directory-only patterns (build/)
//   - patterns scoped to a subdirectory, for nested ignore files
//
// A Matcher is safe for concurrent Match calls while AddPattern calls from
// another goroutine add rules discovered mid-scan.
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!important.log")
//	m.AddPattern("/build/")
//
//	if m.Match("error.log", false) {
//	    // path is ignored
//	}
//
// Patterns from a nested ignore file are scoped to the directory they
// were found in:
//
//	m.AddFromFile("/repo/.gitignore", "")
//	m.AddFromFile("/repo/src/.bmignore", "src")
package gitignore
