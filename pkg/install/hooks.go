package install

import (
	"context"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// hookNames are the recognized post-install hook filenames.
var hookNames = []string{"post-install", "post-install.sh"}

// findHook returns the path of the first post-install hook in the
// installed tree, walking in sorted order so the pick is deterministic.
func findHook(dir string) (string, bool) {
	var hooks []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, name := range hookNames {
			if d.Name() == name {
				hooks = append(hooks, path)
			}
		}
		return nil
	})
	if len(hooks) == 0 {
		return "", false
	}
	sort.Strings(hooks)
	return hooks[0], true
}

// runHook executes a post-install hook with the install directory as
// working directory. The caller treats a failure as non-fatal.
func runHook(ctx context.Context, hookPath, installDir string) error {
	if err := os.Chmod(hookPath, 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, hookPath)
	cmd.Dir = installDir
	cmd.Env = append(os.Environ(), "DEPFORGE_INSTALL_DIR="+installDir)
	return cmd.Run()
}
