//go:build !unix && !windows

package lockfile

import "os"

// No advisory locking here; the CLI runs as a single process.
func flockExclusive(*os.File) error         { return nil }
func flockExclusiveNonBlock(*os.File) error { return nil }
func flockUnlock(*os.File) error            { return nil }
