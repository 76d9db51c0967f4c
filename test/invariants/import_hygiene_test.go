package invariants

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const modulePath = "github.com/yukistavailable/NeuralTailor"

// TestLayeringRules enforces the package layering: the geometry and tensor
// core (pattern, mesh, stitchrec) stays free of service-level dependencies,
// and log/fsutil stay at the bottom.
func TestLayeringRules(t *testing.T) {
	projectRoot := findProjectRoot(t)

	var violations []string

	for _, base := range []string{"internal/pattern", "internal/mesh", "internal/stitchrec"} {
		for _, upper := range []string{
			"internal/api", "internal/sim", "internal/dataset",
			"internal/experiment", "internal/recovery", "internal/config",
		} {
			violations = append(violations, checkForbiddenImport(
				t, projectRoot, base,
				modulePath+"/"+upper,
				fmt.Sprintf("core package %s must not depend on %s", base, upper),
			)...)
		}
	}

	// the bottom layer imports nothing of the module but itself
	for _, bottom := range []string{"internal/log", "internal/fsutil", "internal/version"} {
		violations = append(violations, checkForbiddenImportExcept(
			t, projectRoot, bottom,
			modulePath+"/internal",
			[]string{modulePath + "/" + bottom},
			fmt.Sprintf("%s is a leaf package", bottom),
		)...)
	}

	// commands talk to internal packages, never the other way around
	violations = append(violations, checkForbiddenImport(
		t, projectRoot, "internal",
		modulePath+"/cmd",
		"internal packages must not import commands",
	)...)

	if len(violations) > 0 {
		t.Errorf("Layering violations detected:\n\n%s", strings.Join(violations, "\n"))
	}
}

// TestNoUtilsPackages prevents creation of grab-bag packages.
func TestNoUtilsPackages(t *testing.T) {
	projectRoot := findProjectRoot(t)

	forbiddenDirs := []string{
		"internal/utils",
		"internal/util",
		"internal/common",
		"internal/helpers",
		"internal/shared",
	}

	for _, dir := range forbiddenDirs {
		if _, err := os.Stat(filepath.Join(projectRoot, dir)); err == nil {
			t.Errorf("forbidden package detected: %s (use a semantically named package instead)", dir)
		}
	}
}

func checkForbiddenImport(t *testing.T, projectRoot, sourceDir, forbiddenImportPrefix, reason string) []string {
	return checkForbiddenImportExcept(t, projectRoot, sourceDir, forbiddenImportPrefix, nil, reason)
}

func checkForbiddenImportExcept(t *testing.T, projectRoot, sourceDir, forbiddenImportPrefix string, allowedPrefixes []string, reason string) []string {
	t.Helper()

	files, err := findGoFiles(filepath.Join(projectRoot, sourceDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("failed to scan %s: %v", sourceDir, err)
	}

	var violations []string
	for _, file := range files {
		imports, err := extractImports(file)
		if err != nil {
			t.Logf("warning: failed to parse %s: %v", file, err)
			continue
		}
		for _, imp := range imports {
			if !strings.HasPrefix(imp, forbiddenImportPrefix) {
				continue
			}
			allowed := false
			for _, prefix := range allowedPrefixes {
				if strings.HasPrefix(imp, prefix) {
					allowed = true
					break
				}
			}
			if allowed {
				continue
			}
			relPath, _ := filepath.Rel(projectRoot, file)
			violations = append(violations, fmt.Sprintf(
				"  %s imports %s\n     Reason: %s", relPath, imp, reason))
		}
	}
	return violations
}

func findGoFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func extractImports(filePath string) ([]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filePath, nil, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}
	imports := make([]string, 0, len(f.Imports))
	for _, imp := range f.Imports {
		imports = append(imports, strings.Trim(imp.Path.Value, `"`))
	}
	return imports, nil
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above the test directory")
		}
		dir = parent
	}
}
