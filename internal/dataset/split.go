package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/yukistavailable/NeuralTailor/internal/fsutil"
)

// Split assigns datapoint names to the dataset sections.
type Split struct {
	Training   []string `json:"training"`
	Validation []string `json:"validation"`
	Test       []string `json:"test"`
}

// Section names.
const (
	SectionTraining   = "training"
	SectionValidation = "validation"
	SectionTest       = "test"
)

// NewSplit partitions names into training, validation and test sections.
// The same (names, percentages, seed) always yields the same split: names
// are sorted, shuffled with the seeded source, and the validation and test
// sections are cut from the tail.
func NewSplit(names []string, validPct, testPct int, seed int64) (Split, error) {
	if validPct < 0 || testPct < 0 || validPct+testPct > 100 {
		return Split{}, fmt.Errorf("dataset: invalid split percentages %d/%d", validPct, testPct)
	}

	shuffled := make([]string, len(names))
	copy(shuffled, names)
	sort.Strings(shuffled)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nTest := n * testPct / 100
	nValid := n * validPct / 100

	split := Split{
		Training:   shuffled[:n-nValid-nTest],
		Validation: shuffled[n-nValid-nTest : n-nTest],
		Test:       shuffled[n-nTest:],
	}
	return split, nil
}

// Sections returns the split as a name-to-section lookup map.
func (s Split) Sections() map[string]string {
	out := make(map[string]string, len(s.Training)+len(s.Validation)+len(s.Test))
	for _, n := range s.Training {
		out[n] = SectionTraining
	}
	for _, n := range s.Validation {
		out[n] = SectionValidation
	}
	for _, n := range s.Test {
		out[n] = SectionTest
	}
	return out
}

// Apply re-binds the split to the available datapoint names: names missing
// from the dataset are dropped, dataset names missing from the split join the
// training section.
func (s Split) Apply(available []string) Split {
	sections := s.Sections()

	var out Split
	for _, name := range available {
		switch sections[name] {
		case SectionValidation:
			out.Validation = append(out.Validation, name)
		case SectionTest:
			out.Test = append(out.Test, name)
		default:
			out.Training = append(out.Training, name)
		}
	}
	return out
}

// Save writes the split file atomically.
func (s Split) Save(path string) error {
	return fsutil.WriteJSONAtomic(path, s)
}

// LoadSplit reads a split file.
func LoadSplit(path string) (Split, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Split{}, err
	}
	var s Split
	if err := json.Unmarshal(data, &s); err != nil {
		return Split{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
