package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func entry(file, label string) BinaryEntry {
	return BinaryEntry{Filename: file, Label: label}
}

func TestBalanceEqualizesCounts(t *testing.T) {
	sets := BinarySet{
		"cat": {Annotations: []BinaryEntry{
			entry("a.jpg", "cat"), entry("b.jpg", "cat"), entry("c.jpg", "cat"),
			entry("d.jpg", AbsentLabel), entry("e.jpg", AbsentLabel),
			entry("f.jpg", AbsentLabel), entry("g.jpg", AbsentLabel),
		}},
		"dog": {Annotations: []BinaryEntry{
			entry("a.jpg", "dog"),
			entry("b.jpg", AbsentLabel), entry("c.jpg", AbsentLabel),
			entry("d.jpg", AbsentLabel), entry("e.jpg", AbsentLabel),
			entry("f.jpg", AbsentLabel), entry("g.jpg", AbsentLabel),
		}},
	}
	result := Balance(sets, []string{"cat", "dog"})

	// dog has only 1 present entry, so m=1 for everyone
	require.Equal(t, 1, result.Count)
	for class, set := range result.Sets {
		present, absent := countLabels(set, class)
		require.Equal(t, 1, present, "class %v", class)
		require.Equal(t, 1, absent, "class %v", class)
	}

	// Order-preserving: the first present and first absent entries survive
	require.Equal(t, []BinaryEntry{
		entry("a.jpg", "cat"), entry("d.jpg", AbsentLabel),
	}, result.Sets["cat"].Annotations)
}

func TestBalanceExcludesZeroPresentClass(t *testing.T) {
	sets := BinarySet{
		"cat": {Annotations: []BinaryEntry{
			entry("a.jpg", "cat"), entry("b.jpg", AbsentLabel),
		}},
		"unicorn": {Annotations: []BinaryEntry{
			entry("a.jpg", AbsentLabel), entry("b.jpg", AbsentLabel),
		}},
	}
	result := Balance(sets, []string{"cat", "unicorn"})

	require.Contains(t, result.Sets, "cat")
	require.NotContains(t, result.Sets, "unicorn")
	require.Len(t, result.Notes, 1)
	require.Contains(t, result.Notes[0], "unicorn")
	// The unicorn class must not drag m down to zero for everyone else
	require.Equal(t, 1, result.Count)
}

func TestBalanceDeterministic(t *testing.T) {
	sets := BinarySet{
		"cat": {Annotations: []BinaryEntry{
			entry("a.jpg", "cat"), entry("b.jpg", AbsentLabel),
			entry("c.jpg", "cat"), entry("d.jpg", AbsentLabel),
		}},
	}
	first := Balance(sets, []string{"cat"})
	second := Balance(sets, []string{"cat"})
	require.Equal(t, first, second)
}
