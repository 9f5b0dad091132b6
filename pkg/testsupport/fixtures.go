package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// LoadGolden loads expected test output from a golden file.
// The path is relative to the test package directory.
func LoadGolden(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load golden file from %s: %v", path, err)
	}

	return data
}

// WriteGolden writes test output to a golden file.
// This should typically only be called when updating golden files.
func WriteGolden(t *testing.T, path string, data []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual data with the golden file at path.
// If the golden file doesn't exist, it creates one with the actual data.
func CompareWithGolden(t *testing.T, path string, actual []byte) {
	t.Helper()

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			WriteGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
