package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-pipeline/errors"
)

// ComputePreopens returns the sorted, deduplicated parent directories of
// every file input and output. Those directories are the only host paths
// a run exposes to the module. The result does not depend on the order
// of inputs or outputs.
func ComputePreopens(inputs []Input, outputs []OutputSpec) ([]string, error) {
	set := make(map[string]struct{})

	for i, in := range inputs {
		if !in.Type.IsFile() {
			continue
		}
		dir, err := parentDir(in.Path)
		if err != nil {
			return nil, withPath(err, "inputs", i)
		}
		set[dir] = struct{}{}
	}
	for i, out := range outputs {
		if !out.Type.IsFile() {
			continue
		}
		dir, err := parentDir(out.Path)
		if err != nil {
			return nil, withPath(err, "outputs", i)
		}
		set[dir] = struct{}{}
	}

	dirs := make([]string, 0, len(set))
	for dir := range set {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// parentDir returns the directory containing path. A path without a
// directory component, or the root itself, has no usable parent.
func parentDir(path string) (string, error) {
	if path == "" {
		return "", errors.PathInvalid(path, "empty path")
	}
	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)
	if dir == clean {
		return "", errors.PathInvalid(path, "path has no parent directory")
	}
	if dir == "." {
		return "", errors.PathInvalid(path, "path has no directory component")
	}
	return dir, nil
}

func withPath(err error, field string, index int) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = []string{field, strconv.Itoa(index)}
	}
	return err
}

// checkPreopens verifies every preopen is an existing host directory.
func checkPreopens(dirs []string) error {
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return errors.New(errors.PhaseValidate, errors.KindPath).
				Value(dir).
				Detail("%s: preopen directory not accessible", dir).
				Cause(err).
				Build()
		}
		if !info.IsDir() {
			return errors.PathInvalid(dir, "not a directory")
		}
	}
	return nil
}

// fsConfig mounts each directory at the identical guest path. No
// directories means no filesystem access at all.
func fsConfig(dirs []string) wazero.FSConfig {
	if len(dirs) == 0 {
		return nil
	}
	cfg := wazero.NewFSConfig()
	for _, dir := range dirs {
		cfg = cfg.WithDirMount(dir, dir)
	}
	return cfg
}
