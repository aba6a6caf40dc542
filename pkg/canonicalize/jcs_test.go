package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_Sorting(t *testing.T) {
	input := map[string]any{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(b))
}

func TestJCS_RecursiveSorting(t *testing.T) {
	input := map[string]any{
		"z": map[string]any{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<script>alert('xss')</script> &"}`, string(b))
}

func TestJCS_StructTags(t *testing.T) {
	type event struct {
		Sequence uint64  `json:"sequence_number"`
		PacID    *string `json:"pac_id"`
		Type     string  `json:"event_type"`
	}

	b, err := JCS(event{Sequence: 7, Type: "PAC_ADMITTED"})
	require.NoError(t, err)
	assert.Equal(t, `{"event_type":"PAC_ADMITTED","pac_id":null,"sequence_number":7}`, string(b))
}

func TestJCS_NumberForm(t *testing.T) {
	b, err := JCS(map[string]any{"n": 1.0, "f": 0.5})
	require.NoError(t, err)
	assert.Equal(t, `{"f":0.5,"n":1}`, string(b))
}

func TestJCS_RejectsUnmarshalable(t *testing.T) {
	_, err := JCS(map[string]any{"fn": func() {}})
	require.Error(t, err)
}

func TestCanonicalHash_OrderIndependent(t *testing.T) {
	h1, err := CanonicalHash(map[string]any{"a": 1, "b": []any{"x", "y"}})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]any{"b": []any{"x", "y"}, "a": 1})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashBytes(t *testing.T) {
	// sha256("")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashBytes(nil))
}
