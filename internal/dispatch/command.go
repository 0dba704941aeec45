// Package dispatch implements the command dispatch core: routing a backend
// command to the node responsible for it, executing it with retry and
// redirect handling, fanning out to multiple nodes when semantics demand it,
// and maintaining a transparent server-side script cache.
//
// The package never talks to a socket directly. It is driven by the
// ConnectionManager/Client/BatchExecutor collaborator interfaces declared in
// manager.go; internal/rconn supplies a concrete implementation over
// go-redis.
package dispatch

// Decoder converts a raw wire reply into an intermediate decoded value.
// A nil Decoder means "use the reply verbatim".
type Decoder func(raw interface{}) (interface{}, error)

// Convertor reshapes a decoded value into the type callers expect (e.g.
// wrapping a []interface{} into a typed slice). A nil Convertor is a no-op.
type Convertor func(decoded interface{}) (interface{}, error)

// Command describes one backend operation: its wire name plus the decode/
// convert pipeline applied to its reply. Commands are immutable once
// constructed; WithName produces a variant that shares the same decoder and
// convertor but targets a different wire name (used to rewrite EVAL into
// EVALSHA without losing the caller's expected result shape).
type Command struct {
	Name      string
	Decoder   Decoder
	Convertor Convertor
}

// NewCommand builds a Command with the given wire name and optional
// decode/convert pipeline.
func NewCommand(name string, decoder Decoder, convertor Convertor) Command {
	return Command{Name: name, Decoder: decoder, Convertor: convertor}
}

// WithName returns a variant of c addressed at a different wire name,
// carrying over c's decoder and convertor untouched.
func (c Command) WithName(name string) Command {
	c.Name = name
	return c
}

// Decode applies the command's decoder (if any) to a raw reply.
func (c Command) Decode(raw interface{}) (interface{}, error) {
	if c.Decoder == nil {
		return raw, nil
	}
	return c.Decoder(raw)
}

// Convert applies the command's convertor (if any) to a decoded value.
func (c Command) Convert(decoded interface{}) (interface{}, error) {
	if c.Convertor == nil {
		return decoded, nil
	}
	return c.Convertor(decoded)
}
