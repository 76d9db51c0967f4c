package dataset

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func splitNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("dp_%03d", i)
	}
	return names
}

func TestNewSplitSizes(t *testing.T) {
	s, err := NewSplit(splitNames(100), 10, 15, 7)
	require.NoError(t, err)
	require.Len(t, s.Training, 75)
	require.Len(t, s.Validation, 10)
	require.Len(t, s.Test, 15)

	// every name lands in exactly one section
	seen := map[string]int{}
	for _, n := range s.Training {
		seen[n]++
	}
	for _, n := range s.Validation {
		seen[n]++
	}
	for _, n := range s.Test {
		seen[n]++
	}
	require.Len(t, seen, 100)
	for _, c := range seen {
		require.Equal(t, 1, c)
	}
}

func TestNewSplitReproducible(t *testing.T) {
	a, err := NewSplit(splitNames(50), 20, 20, 42)
	require.NoError(t, err)
	b, err := NewSplit(splitNames(50), 20, 20, 42)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := NewSplit(splitNames(50), 20, 20, 43)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestNewSplitInvalidPercentages(t *testing.T) {
	_, err := NewSplit(splitNames(10), 60, 50, 1)
	require.Error(t, err)
	_, err = NewSplit(splitNames(10), -1, 10, 1)
	require.Error(t, err)
}

func TestSplitSaveLoadApply(t *testing.T) {
	s, err := NewSplit(splitNames(20), 20, 10, 3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "data_split.json")
	require.NoError(t, s.Save(path))
	loaded, err := LoadSplit(path)
	require.NoError(t, err)
	require.Equal(t, s, loaded)

	// a shrunken dataset: missing names drop out, new names go to training
	available := append(splitNames(10), "extra_dp")
	applied := loaded.Apply(available)
	sections := applied.Sections()
	require.Equal(t, SectionTraining, sections["extra_dp"])
	total := len(applied.Training) + len(applied.Validation) + len(applied.Test)
	require.Equal(t, len(available), total)

	orig := loaded.Sections()
	for name, section := range sections {
		if name == "extra_dp" {
			continue
		}
		require.Equal(t, orig[name], section)
	}
}
