package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_LoadsEmbeddedTable(t *testing.T) {
	kb, err := Default()
	require.NoError(t, err)
	require.Equal(t, []string{"ceporex", "paracetamol", "prednisona"}, kb.Names())

	l, ok := kb.Lookup("paracetamol")
	require.True(t, ok)
	require.Equal(t, 250.0, l.Min)
	require.Equal(t, 1000.0, l.Max)
	require.Equal(t, "mg", l.Unit)
	require.Equal(t, []string{"warfarin"}, l.Interactions)
	require.Equal(t, "Category A - Safe during pregnancy", l.PregnancyRisk)
}

func TestLookup_CaseInsensitiveExactMatch(t *testing.T) {
	kb, err := Default()
	require.NoError(t, err)

	_, ok := kb.Lookup("PrednisonA")
	require.True(t, ok)
	_, ok = kb.Lookup("  Ceporex ")
	require.True(t, ok)

	for _, name := range []string{"paracetamoll", "pcm", "tylenol", ""} {
		_, ok := kb.Lookup(name)
		require.False(t, ok, "name=%q", name)
	}
}

func TestLookup_ReturnsCopies(t *testing.T) {
	kb, err := Default()
	require.NoError(t, err)

	l, _ := kb.Lookup("prednisona")
	l.Interactions[0] = "mutated"

	again, _ := kb.Lookup("prednisona")
	require.Equal(t, []string{"anticoagulants", "nsaids"}, again.Interactions)
}

func TestLookup_NilBase(t *testing.T) {
	var kb *Base
	_, ok := kb.Lookup("paracetamol")
	require.False(t, ok)
}

func TestParse_RejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"min above max": "x:\n  min: 10\n  max: 5\n  unit: mg\n",
		"bad unit":      "x:\n  min: 1\n  max: 5\n  unit: mcg\n",
		"negative min":  "x:\n  min: -1\n  max: 5\n  unit: ml\n",
		"empty":         "",
		"not yaml":      "x: [1",
		"duplicate key": "Aspirin:\n  min: 1\n  max: 5\n  unit: mg\naspirin:\n  min: 1\n  max: 5\n  unit: mg\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Amoxicilina:\n  min: 250\n  max: 875\n  unit: MG\n"), 0o600))

	kb, err := LoadFile(path)
	require.NoError(t, err)
	l, ok := kb.Lookup("amoxicilina")
	require.True(t, ok)
	require.Equal(t, "mg", l.Unit)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestAbbreviations(t *testing.T) {
	kb, err := Default()
	require.NoError(t, err)
	require.Equal(t, map[string][]string{
		"ceporex":     {"cpx", "cpr"},
		"paracetamol": {"pcm", "para"},
		"prednisona":  {"pred", "pdm"},
	}, kb.Abbreviations())
}
