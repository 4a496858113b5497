package version

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"empty is latest", "", Latest{}},
		{"latest keyword", "latest", Latest{}},
		{"exact with v prefix", "v1.2.3", Exact{}},
		{"caret requirement", "^1.0.0", Requirement{}},
		{"tilde requirement", "~1.2.0", Requirement{}},
		{"git ref branch", "feature/foo", GitRef{}},
		{"git ref sha", "abc123", GitRef{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.IsType(t, tt.want, c)
		})
	}
}

func TestConstraintSet_CaretSelectsHighestCompatible(t *testing.T) {
	c, err := Parse("^1.0.0")
	require.NoError(t, err)
	set := NewConstraintSet("foo")
	require.NoError(t, set.Add(c, "root"))

	candidates := []*semver.Version{
		mustVersion(t, "1.0.0-alpha"),
		mustVersion(t, "1.0.0"),
		mustVersion(t, "1.5.0"),
		mustVersion(t, "2.0.0"),
	}
	best, err := set.FindBestMatch(candidates)
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", best.String())
}

func TestConstraintSet_RangeIntersection(t *testing.T) {
	set := NewConstraintSet("foo")
	ge, err := Parse(">=1.0.0")
	require.NoError(t, err)
	lt, err := Parse("<2.0.0")
	require.NoError(t, err)
	require.NoError(t, set.Add(ge, "a"))
	require.NoError(t, set.Add(lt, "b"))

	_, err = set.FindBestMatch([]*semver.Version{mustVersion(t, "2.0.0")})
	assert.Error(t, err)

	best, err := set.FindBestMatch([]*semver.Version{mustVersion(t, "1.5.0"), mustVersion(t, "2.0.0")})
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", best.String())
}

func TestConstraintSet_ExactConflict(t *testing.T) {
	set := NewConstraintSet("foo")
	a, err := Parse("v1.0.0")
	require.NoError(t, err)
	b, err := Parse("v2.0.0")
	require.NoError(t, err)
	require.NoError(t, set.Add(a, "root-a"))
	assert.Error(t, set.Add(b, "root-b"))
}

func TestConstraintSet_ExactSameVersionCombines(t *testing.T) {
	set := NewConstraintSet("foo")
	a, err := Parse("v1.0.0")
	require.NoError(t, err)
	b, err := Parse("v1.0.0")
	require.NoError(t, err)
	require.NoError(t, set.Add(a, "root-a"))
	assert.NoError(t, set.Add(b, "root-b"))
}

func TestCircularDependencyDetector_FindsCycle(t *testing.T) {
	d := NewCircularDependencyDetector()
	d.AddEdge("A", "B")
	d.AddEdge("B", "C")
	d.AddEdge("C", "A")

	cycle := d.Check([]string{"A", "B", "C"})
	require.NotNil(t, cycle)
	assert.Equal(t, "A", cycle[0])
	assert.Equal(t, "A", cycle[len(cycle)-1])
}

func TestCircularDependencyDetector_Acyclic(t *testing.T) {
	d := NewCircularDependencyDetector()
	d.AddEdge("A", "B")
	d.AddEdge("B", "C")

	assert.Nil(t, d.Check([]string{"A", "B", "C"}))
}
