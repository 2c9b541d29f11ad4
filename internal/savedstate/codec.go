package savedstate

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Codec converts a state value to and from its persisted bytes.
//
// Codecs are chosen per state type at construction; there is no runtime
// registry.
type Codec[S any] interface {
	Encode(v S) ([]byte, error)
	Decode(data []byte) (S, error)
	// Name identifies the format in logs and the CLI.
	Name() string
}

// JSONCodec stores states as canonical JSON.
type JSONCodec[S any] struct{}

// Encode implements Codec.
func (JSONCodec[S]) Encode(v S) ([]byte, error) {
	return MarshalCanonical(v)
}

// Decode implements Codec.
func (JSONCodec[S]) Decode(data []byte) (S, error) {
	var v S
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode json state: %w", err)
	}
	return v, nil
}

// Name implements Codec.
func (JSONCodec[S]) Name() string { return "json" }

// YAMLCodec stores states as YAML, for snapshots meant to be read or edited
// by hand.
type YAMLCodec[S any] struct{}

// Encode implements Codec.
func (YAMLCodec[S]) Encode(v S) ([]byte, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode yaml state: %w", err)
	}
	return data, nil
}

// Decode implements Codec.
func (YAMLCodec[S]) Decode(data []byte) (S, error) {
	var v S
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode yaml state: %w", err)
	}
	return v, nil
}

// Name implements Codec.
func (YAMLCodec[S]) Name() string { return "yaml" }

// Tagged is implemented by every variant of a sum-type state.
type Tagged interface {
	StateTag() string
}

// Variant maps a tag to the decoder for one concrete variant.
type Variant[S any] struct {
	Tag    string
	decode func(data []byte) (S, error)
}

// VariantOf declares that tag decodes into the concrete type V, which must
// implement S.
func VariantOf[S Tagged, V any](tag string) Variant[S] {
	return Variant[S]{
		Tag: tag,
		decode: func(data []byte) (S, error) {
			var zero S
			var v V
			if err := json.Unmarshal(data, &v); err != nil {
				return zero, fmt.Errorf("decode variant %q: %w", tag, err)
			}
			s, ok := any(v).(S)
			if !ok {
				return zero, fmt.Errorf("variant %q: %T is not a state variant", tag, v)
			}
			return s, nil
		},
	}
}

type taggedEnvelope struct {
	Tag   string          `json:"tag"`
	Value json.RawMessage `json:"value"`
}

// TaggedCodec stores sum-type states as {"tag": ..., "value": ...}.
// The variant table is fixed at construction.
type TaggedCodec[S Tagged] struct {
	variants map[string]Variant[S]
}

// NewTaggedCodec builds a codec from an explicit variant table.
// Panics on duplicate tags.
func NewTaggedCodec[S Tagged](variants ...Variant[S]) *TaggedCodec[S] {
	table := make(map[string]Variant[S], len(variants))
	for _, v := range variants {
		if _, dup := table[v.Tag]; dup {
			panic(fmt.Sprintf("savedstate: duplicate variant tag %q", v.Tag))
		}
		table[v.Tag] = v
	}
	return &TaggedCodec[S]{variants: table}
}

// Encode implements Codec.
func (c *TaggedCodec[S]) Encode(v S) ([]byte, error) {
	tag := v.StateTag()
	if _, ok := c.variants[tag]; !ok {
		return nil, fmt.Errorf("encode tagged state: unknown tag %q", tag)
	}

	body, err := MarshalCanonical(v)
	if err != nil {
		return nil, fmt.Errorf("encode tagged state %q: %w", tag, err)
	}
	return MarshalCanonical(taggedEnvelope{Tag: tag, Value: body})
}

// Decode implements Codec.
func (c *TaggedCodec[S]) Decode(data []byte) (S, error) {
	var zero S
	var env taggedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, fmt.Errorf("decode tagged state: %w", err)
	}

	v, ok := c.variants[env.Tag]
	if !ok {
		return zero, fmt.Errorf("decode tagged state: unknown tag %q", env.Tag)
	}
	return v.decode(env.Value)
}

// Name implements Codec.
func (c *TaggedCodec[S]) Name() string { return "tagged-json" }
