// Package schema defines the capability interface the core consumes from
// the (out of scope, see SPEC_FULL.md) generated type catalogue. The core
// never inspects a concrete generated type; it only ever holds an Object
// by its ConstructorID and asks a Catalogue to deserialize unknown bytes.
package schema

import "github.com/mtprotogo/core/mtwire"

// Object is any boxed, schema-defined value: an RPC request, an RPC reply,
// or an update payload.
type Object interface {
	// ConstructorID returns the TL constructor id this value serializes
	// with.
	ConstructorID() uint32

	// Serialize appends this value's wire representation (not including
	// the constructor id) to buf.
	Serialize(buf *mtwire.Buffer) error
}

// Function is an Object that additionally names the constructor id of the
// value its RPC reply will carry, so the dispatcher can request the right
// deserializer without waiting to see the bytes.
type Function interface {
	Object

	// ResultConstructorID returns the constructor id of the type this
	// function's RPC result will box, or 0 if the result is itself a
	// bare (non-deterministic) type resolved only once bytes arrive.
	ResultConstructorID() uint32
}

// Deserializer turns wire bytes following a known constructor id back into
// an Object. Generated code registers one function per constructor id it
// owns; the core never hardcodes the mapping except for message envelope
// constructors it owns itself (see mtproto.systemCatalogue).
type Deserializer func(buf *mtwire.Buffer) (Object, error)

// Catalogue resolves a constructor id to the Deserializer that knows how
// to build that type. It is supplied by the generated-schema layer (out of
// scope) at Client construction time.
type Catalogue interface {
	Lookup(constructorID uint32) (Deserializer, bool)
}

// MapCatalogue is the trivial Catalogue implementation: a map from
// constructor id to Deserializer. Generated code is expected to build one
// of these (or something API-compatible) at init time.
type MapCatalogue map[uint32]Deserializer

// Lookup implements Catalogue.
func (m MapCatalogue) Lookup(constructorID uint32) (Deserializer, bool) {
	d, ok := m[constructorID]
	return d, ok
}

// Merge returns a new MapCatalogue containing the entries of m and every
// catalogue in others, with later entries winning on collision. Useful for
// combining the core's own system-message catalogue with a generated one.
func (m MapCatalogue) Merge(others ...MapCatalogue) MapCatalogue {
	out := make(MapCatalogue, len(m))

	for k, v := range m {
		out[k] = v
	}

	for _, other := range others {
		for k, v := range other {
			out[k] = v
		}
	}

	return out
}

// Encode writes obj's constructor id followed by its wire body to buf.
func Encode(obj Object, buf *mtwire.Buffer) error {
	buf.PutUint32(obj.ConstructorID())
	return obj.Serialize(buf)
}

// Decode reads a constructor id from buf and deserializes the following
// body using cat.
func Decode(cat Catalogue, buf *mtwire.Buffer) (Object, error) {
	ctor, err := buf.Uint32()
	if err != nil {
		return nil, err
	}

	d, ok := cat.Lookup(ctor)
	if !ok {
		return nil, &UnknownConstructorError{ConstructorID: ctor}
	}

	return d(buf)
}

// UnknownConstructorError is returned when a constructor id has no
// registered Deserializer. The sender treats this as a Protocol error
// (§7): fatal for the current message, transport may survive.
type UnknownConstructorError struct {
	ConstructorID uint32
}

func (e *UnknownConstructorError) Error() string {
	return "schema: unknown constructor id " + hex32(e.ConstructorID)
}

func hex32(v uint32) string {
	const hexdigits = "0123456789abcdef"

	buf := [10]byte{'0', 'x'}
	for i := 0; i < 8; i++ {
		buf[9-i] = hexdigits[v&0xf]
		v >>= 4
	}

	return string(buf[:])
}
