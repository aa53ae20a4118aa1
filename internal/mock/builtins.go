package mock

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.followtheprocess.codes/apidoc/internal/eval"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Bounds of the CJK Unified Ideographs block used by random_zh.
const (
	cjkFirst = 0x4E00
	cjkLast  = 0x9FA5
)

// maxExactInt is the largest integer a float64 holds exactly, 2^53.
const maxExactInt = 1 << 53

// maxLength caps the length argument of the text generators.
const maxLength = 4096

// builtins returns the named generator functions available to mock expressions.
func (g *Generator) builtins() map[string]eval.Func {
	return map[string]eval.Func{
		"random":      g.random,
		"random_str":  g.randomStr,
		"random_zh":   g.randomZh,
		"random_bool": g.randomBool,
		"uuid":        g.newUUID,
		"pick":        g.pick,
		"now":         g.nowFunc,
	}
}

// random(a, b) returns a number in [a, b], an integer if both bounds are.
func (g *Generator) random(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("random takes 2 arguments, got %d", len(args))
	}

	lo, err := number(args[0])
	if err != nil {
		return nil, err
	}

	hi, err := number(args[1])
	if err != nil {
		return nil, err
	}

	if lo > hi {
		return nil, fmt.Errorf("random lower bound %v is greater than upper bound %v", lo, hi)
	}

	if math.IsNaN(lo) || math.IsNaN(hi) || lo < -maxExactInt || hi > maxExactInt {
		return nil, fmt.Errorf("random bounds must be within ±%d, got %v and %v", int64(maxExactInt), lo, hi)
	}

	if lo == math.Trunc(lo) && hi == math.Trunc(hi) {
		low := int64(lo)
		span := uint64(int64(hi)-low) + 1
		return low + int64(g.rand.Uint64N(span)), nil
	}

	return lo + g.rand.Float64()*(hi-lo), nil
}

// random_str(n) returns n random letters and digits.
func (g *Generator) randomStr(args []any) (any, error) {
	n, err := length(args)
	if err != nil {
		return nil, err
	}

	return g.text(n, alphanumeric), nil
}

// random_zh(n) returns n random Chinese characters.
func (g *Generator) randomZh(args []any) (any, error) {
	n, err := length(args)
	if err != nil {
		return nil, err
	}

	runes := make([]rune, n)
	for i := range runes {
		runes[i] = rune(cjkFirst + g.rand.IntN(cjkLast-cjkFirst+1))
	}

	return string(runes), nil
}

func (g *Generator) randomBool(args []any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("random_bool takes no arguments, got %d", len(args))
	}

	return g.rand.IntN(2) == 0, nil
}

// uuid() returns a random version 4 UUID drawn from the generator's source, so
// seeded generators produce the same UUIDs.
func (g *Generator) newUUID(args []any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("uuid takes no arguments, got %d", len(args))
	}

	id, err := uuid.NewRandomFromReader(reader{g: g})
	if err != nil {
		return nil, err
	}

	return id.String(), nil
}

// pick(a, ...) returns one of its arguments at random.
func (g *Generator) pick(args []any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("pick needs at least one argument")
	}

	return args[g.rand.IntN(len(args))], nil
}

// now() returns the current time in RFC 3339 format.
func (g *Generator) nowFunc(args []any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("now takes no arguments, got %d", len(args))
	}

	return g.now().UTC().Format(time.RFC3339), nil
}

// text returns n characters drawn from alphabet.
func (g *Generator) text(n int, alphabet string) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[g.rand.IntN(len(alphabet))]
	}

	return string(buf)
}

// length validates the single length argument to a text generator.
func length(args []any) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected 1 length argument, got %d", len(args))
	}

	n, err := number(args[0])
	if err != nil {
		return 0, err
	}

	if n < 0 || n != math.Trunc(n) || n > maxLength {
		return 0, fmt.Errorf("length must be a whole number between 0 and %d, got %v", maxLength, n)
	}

	return int(n), nil
}

func number(arg any) (float64, error) {
	switch v := arg.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected a number, got %s", eval.String(arg))
	}
}

// reader adapts a [Generator] to an [io.Reader] of random bytes.
type reader struct {
	g *Generator
}

func (r reader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.g.rand.Uint32())
	}

	return len(p), nil
}
