package savedstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count int    `json:"count" yaml:"count"`
	Label string `json:"label" yaml:"label"`
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec[counterState]{}
	assert.Equal(t, "json", codec.Name())

	data, err := codec.Encode(counterState{Count: 3, Label: "clicks"})
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"label":"clicks"}`, string(data))

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, counterState{Count: 3, Label: "clicks"}, got)

	_, err = codec.Decode([]byte("{not json"))
	assert.ErrorContains(t, err, "decode json state")
}

func TestYAMLCodec(t *testing.T) {
	codec := YAMLCodec[counterState]{}
	assert.Equal(t, "yaml", codec.Name())

	data, err := codec.Encode(counterState{Count: 3, Label: "clicks"})
	require.NoError(t, err)
	assert.Equal(t, "count: 3\nlabel: clicks\n", string(data))

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, counterState{Count: 3, Label: "clicks"}, got)
}

// screen is a sum-type state with two variants.
type screen interface {
	Tagged
}

type loading struct {
	Progress int `json:"progress"`
}

func (loading) StateTag() string { return "loading" }

type ready struct {
	Items []string `json:"items"`
}

func (ready) StateTag() string { return "ready" }

type unknownScreen struct{}

func (unknownScreen) StateTag() string { return "mystery" }

func newScreenCodec() *TaggedCodec[screen] {
	return NewTaggedCodec(
		VariantOf[screen, loading]("loading"),
		VariantOf[screen, ready]("ready"),
	)
}

func TestTaggedCodec_RoundTripsEachVariant(t *testing.T) {
	codec := newScreenCodec()

	data, err := codec.Encode(loading{Progress: 40})
	require.NoError(t, err)
	assert.Equal(t, `{"tag":"loading","value":{"progress":40}}`, string(data))

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, loading{Progress: 40}, got)

	data, err = codec.Encode(ready{Items: []string{"a", "b"}})
	require.NoError(t, err)
	got, err = codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ready{Items: []string{"a", "b"}}, got)
}

func TestTaggedCodec_UnknownTags(t *testing.T) {
	codec := newScreenCodec()

	_, err := codec.Encode(unknownScreen{})
	assert.ErrorContains(t, err, `unknown tag "mystery"`)

	_, err = codec.Decode([]byte(`{"tag":"mystery","value":{}}`))
	assert.ErrorContains(t, err, `unknown tag "mystery"`)
}

func TestNewTaggedCodec_DuplicateTagPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewTaggedCodec(
			VariantOf[screen, loading]("loading"),
			VariantOf[screen, ready]("loading"),
		)
	})
}
