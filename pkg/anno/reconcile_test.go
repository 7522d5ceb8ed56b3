package anno

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoItemSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := ParseSchema([]byte(`{
		"a": {"present": false, "confidence": 0.0, "bbox": null},
		"b": {"present": false, "confidence": 0.0, "bbox": null}
	}`))
	require.NoError(t, err)
	return s
}

func TestReconcileKeySetIsExactlySchema(t *testing.T) {
	s := twoItemSchema(t)
	cases := []map[string]any{
		{},
		{"a": map[string]any{"present": true, "confidence": 0.5}},
		{"zzz": map[string]any{"present": true}, "b": true},
		{"a": 17, "b": "junk", "c": nil},
	}
	for _, parsed := range cases {
		out := Reconcile(s, parsed)
		require.Len(t, out, 2)
		require.Contains(t, out, "a")
		require.Contains(t, out, "b")
	}
}

func TestReconcileRoundTrip(t *testing.T) {
	s := twoItemSchema(t)
	parsed, err := ExtractJSON(`{"a":{"present":true,"confidence":0.8,"bbox":[0.1,0.1,0.5,0.5]}}`)
	require.NoError(t, err)

	out := Reconcile(s, parsed)
	require.True(t, out["a"].Present)
	require.InDelta(t, 0.8, out["a"].Confidence, 1e-6)
	require.NotNil(t, out["a"].BBox)
	require.Equal(t, Box{X0: 0.1, Y0: 0.1, X1: 0.5, Y1: 0.5}, *out["a"].BBox)

	// b was never mentioned, so it is the schema default verbatim
	require.False(t, out["b"].Present)
	require.EqualValues(t, 0, out["b"].Confidence)
	require.Nil(t, out["b"].BBox)
}

func TestReconcilePresentCoercion(t *testing.T) {
	s := twoItemSchema(t)
	truthy := []any{true, float64(1), "true", "TRUE", " yes ", "1"}
	for _, v := range truthy {
		out := Reconcile(s, map[string]any{"a": map[string]any{"present": v}})
		require.True(t, out["a"].Present, "present=%v must coerce to true", v)
	}
	falsy := []any{false, float64(0), "false", "maybe", "2", nil, []any{}}
	for _, v := range falsy {
		out := Reconcile(s, map[string]any{"a": map[string]any{"present": v}})
		require.False(t, out["a"].Present, "present=%v must coerce to false", v)
	}
}

func TestReconcileConfidenceClamping(t *testing.T) {
	s := twoItemSchema(t)
	cases := []struct {
		in   any
		want float32
	}{
		{float64(0.7), 0.7},
		{float64(-3), 0},
		{float64(9.5), 1},
		{"0.25", 0.25},
		{"high", 0},
		{nil, 0},
		{[]any{0.5}, 0},
	}
	for _, c := range cases {
		out := Reconcile(s, map[string]any{"a": map[string]any{"present": true, "confidence": c.in}})
		require.InDelta(t, c.want, out["a"].Confidence, 1e-6, "confidence=%v", c.in)
	}
}

func TestReconcileNullFieldsKeepItemDefaults(t *testing.T) {
	// Defaults that are not the zero value, so a silent false/0 coercion of
	// missing fields would be visible.
	s, err := ParseSchema([]byte(`{"a": {"present": true, "confidence": 0.5, "bbox": null}}`))
	require.NoError(t, err)

	// Empty sub-object: every field falls back to the item's default
	out := Reconcile(s, map[string]any{"a": map[string]any{}})
	require.True(t, out["a"].Present)
	require.InDelta(t, 0.5, out["a"].Confidence, 1e-6)

	// Explicit nulls behave like missing fields
	out = Reconcile(s, map[string]any{"a": map[string]any{"present": nil, "confidence": nil, "bbox": nil}})
	require.True(t, out["a"].Present)
	require.InDelta(t, 0.5, out["a"].Confidence, 1e-6)

	// A supplied but unrecognized value is coerced, not defaulted
	out = Reconcile(s, map[string]any{"a": map[string]any{"present": "maybe", "confidence": "high"}})
	require.False(t, out["a"].Present)
	require.EqualValues(t, 0, out["a"].Confidence)

	// Partial sub-object: only the supplied field changes
	out = Reconcile(s, map[string]any{"a": map[string]any{"confidence": 0.9}})
	require.True(t, out["a"].Present)
	require.InDelta(t, 0.9, out["a"].Confidence, 1e-6)
}

func TestReconcileBareBoolean(t *testing.T) {
	s := twoItemSchema(t)
	out := Reconcile(s, map[string]any{"a": true, "b": false})
	require.True(t, out["a"].Present)
	require.EqualValues(t, 1, out["a"].Confidence)
	require.False(t, out["b"].Present)
	require.EqualValues(t, 0, out["b"].Confidence)
}

func TestReconcileBadBoxFallsBack(t *testing.T) {
	s := twoItemSchema(t)
	bad := []any{
		[]any{0.1, 0.2, 0.3},      // wrong arity
		[]any{0.1, "x", 0.3, 0.4}, // non-numeric
		"0.1,0.2,0.3,0.4",         // not an array
		map[string]any{"x": 0.1},  // wrong shape
	}
	for _, v := range bad {
		out := Reconcile(s, map[string]any{"a": map[string]any{"present": true, "confidence": 1, "bbox": v}})
		require.Nil(t, out["a"].BBox, "bbox=%v must fall back to the nil default", v)
	}
}

func TestSchemaOrderPreserved(t *testing.T) {
	s, err := ParseSchema([]byte(`{"tomato": {}, "avocado": {}, "lettuce": {}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"tomato", "avocado", "lettuce"}, s.Items())
	require.False(t, s.HasBBox())
}

func TestSchemaDetectsBBoxSlot(t *testing.T) {
	s, err := ParseSchema([]byte(`{"tomato": {"present": false, "confidence": 0.0, "bbox": null}}`))
	require.NoError(t, err)
	require.True(t, s.HasBBox())
}
