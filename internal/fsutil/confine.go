package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfineRelPath joins relTarget onto root and verifies the result stays
// physically below root once symlinks are resolved. The target must be
// relative; backslashes are rejected outright so generic parsing stays
// unambiguous across platforms.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("fsutil: path contains backslash: %s", relTarget)
	}
	rel := filepath.Clean(relTarget)
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("fsutil: target must be relative: %s", relTarget)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes root: %s", relTarget)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return checkWithin(realRoot, filepath.Join(realRoot, rel))
}

// ConfineAbsPath verifies that an absolute target lies physically below root
// once symlinks are resolved.
func ConfineAbsPath(root, target string) (string, error) {
	if strings.Contains(target, "\\") {
		return "", fmt.Errorf("fsutil: path contains backslash: %s", target)
	}
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("fsutil: target must be absolute: %s", target)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return checkWithin(realRoot, filepath.Clean(target))
}

// resolveRoot resolves the root through symlinks; a root that does not exist
// yet keeps its absolute form.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("fsutil: invalid root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		return abs, nil
	}
	return resolved, nil
}

// checkWithin resolves the target's symlinks and rejects anything landing
// outside realRoot. A target that does not exist yet is checked through its
// parent directory instead.
func checkWithin(realRoot, target string) (string, error) {
	resolved := target
	if _, err := os.Lstat(target); err == nil {
		resolved, err = filepath.EvalSymlinks(target)
		if err != nil {
			// an existing path that cannot be resolved is denied
			return "", fmt.Errorf("fsutil: resolve %s: %w", target, err)
		}
	} else {
		dir := filepath.Dir(target)
		if realDir, err := filepath.EvalSymlinks(dir); err == nil {
			resolved = filepath.Join(realDir, filepath.Base(target))
		} else if _, statErr := os.Stat(dir); statErr == nil {
			return "", fmt.Errorf("fsutil: resolve parent of %s: %w", target, err)
		}
	}

	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("fsutil: relativize %s: %w", resolved, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes root: %s", resolved)
	}
	return resolved, nil
}

// IsRegularFile reports an error unless path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("fsutil: not a regular file: %s", path)
	}
	return nil
}
