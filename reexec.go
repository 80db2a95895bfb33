package supertree

import (
	"fmt"
	"strconv"
	"strings"
)

// reexecCommand is the os.Args[0] value a re-exec'd supervisor/watcher
// process is launched under, so the new process's entrypoint can tell
// itself apart from a normal invocation of the embedding binary. This is
// the same registered-command-name dispatch docker/docker/pkg/reexec uses
// for dockerd's own subprocess helpers.
const reexecCommand = "supertree-child"

const (
	envPath    = "SUPERTREE_PATH"
	envRootPID = "SUPERTREE_ROOT_PID"
)

// decodePath parses the comma-separated path this process was spawned
// with (e.g. "2,1" meaning: at the root, descend into child supervisor 2,
// then within it, the node at local index 1).
func decodePath(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrNoSuchChild, envPath)
	}
	parts := strings.Split(s, ",")
	path := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing %s=%q: %w", envPath, s, err)
		}
		path[i] = n
	}
	return path, nil
}

// encodePath renders a path as the comma-separated form decodePath expects.
func encodePath(path []int) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
