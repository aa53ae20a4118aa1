package mock_test

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.followtheprocess.codes/apidoc/internal/eval"
	"go.followtheprocess.codes/apidoc/internal/mock"
	"go.followtheprocess.codes/apidoc/internal/spec"
	"go.followtheprocess.codes/apidoc/internal/syntax"
	"go.followtheprocess.codes/apidoc/internal/syntax/parser"
	"go.followtheprocess.codes/test"
)

func TestIntegersStayInRange(t *testing.T) {
	doc := resolve(t, "### a\nGET /a\n=> { \"small\": u8, \"signed\": i8, \"wide\": u64 }\n###\n")
	endpoint := &doc.Endpoints[0]

	g := mock.New(42)

	for range 1000 {
		response, err := g.Response(endpoint, nil)
		test.Ok(t, err)

		object, ok := response.(map[string]any)
		test.True(t, ok, test.Context("response should be an object, got %T", response))

		small, ok := object["small"].(int64)
		test.True(t, ok, test.Context("u8 should generate an int64, got %T", object["small"]))
		test.True(t, small >= 0 && small <= 255, test.Context("u8 out of range: %d", small))

		signed, ok := object["signed"].(int64)
		test.True(t, ok)
		test.True(t, signed >= -128 && signed <= 127, test.Context("i8 out of range: %d", signed))

		wide, ok := object["wide"].(int64)
		test.True(t, ok)
		test.True(t, wide >= 0, test.Context("u64 should not be negative: %d", wide))
	}
}

func TestOverridePrefix(t *testing.T) {
	src := `
### profile
GET /profile
=> { "collect": [@collect] }
@collect = { "name": str, "id": u16 } <= { "name": "g_p_" + random_zh(12) }
###
`
	doc := resolve(t, src)
	g := mock.New(7)

	for range 100 {
		response, err := g.Response(&doc.Endpoints[0], nil)
		test.Ok(t, err)

		collect, ok := response.(map[string]any)["collect"].([]any)
		test.True(t, ok)
		test.True(t, len(collect) >= 1 && len(collect) <= 3, test.Context("got %d items", len(collect)))

		for _, item := range collect {
			name, ok := item.(map[string]any)["name"].(string)
			test.True(t, ok)
			test.True(t, strings.HasPrefix(name, "g_p_"), test.Context("%q missing prefix", name))
			test.Equal(t, utf8.RuneCountInString(name), len("g_p_")+12)
		}
	}
}

func TestUnknownGenerator(t *testing.T) {
	doc := resolve(t, "### a\nGET /a\n=> { \"name\": str }\nMOCK => { \"name\": nope(3) }\n###\n")

	_, err := mock.New(1).Response(&doc.Endpoints[0], nil)
	test.Err(t, err)

	var mockErr mock.Error
	test.True(t, errors.As(err, &mockErr), test.Context("expected a mock.Error, got %T", err))
	test.Equal(t, mockErr.Field, "name")

	var fn eval.UnknownFunctionError
	test.True(t, errors.As(err, &fn))
	test.Equal(t, fn.Name, "nope")
}

func TestSeeded(t *testing.T) {
	doc := resolve(t, "### a\nGET /a\n=> { \"id\": uuid(), \"name\": str, \"tags\": [str] }\n###\n")

	first, err := mock.New(99).Response(&doc.Endpoints[0], nil)
	test.Ok(t, err)

	second, err := mock.New(99).Response(&doc.Endpoints[0], nil)
	test.Ok(t, err)

	test.True(t, eval.Equal(first, second), test.Context("same seed should generate the same data"))

	id, ok := first.(map[string]any)["id"].(string)
	test.True(t, ok)
	_, err = uuid.Parse(id)
	test.Ok(t, err)
}

func TestResponseSatisfiesPredicate(t *testing.T) {
	src := `
@BASERES = { "code": u8, "data": * }
@OK: @BASERES.code == 0 && this.status == "active"

### user
GET /user
=> { "status": str, "age": u8 }
###
`
	doc := resolve(t, src)
	endpoint := &doc.Endpoints[0]

	for range 50 {
		response, err := mock.New(0).Response(endpoint, nil)
		test.Ok(t, err)

		ok, err := eval.Eval(endpoint.OK, eval.Env{This: response, Slot: endpoint.Slot, HasThis: true})
		test.Ok(t, err)
		test.True(t, eval.Truthy(ok), test.Context("generated response %v fails the predicate", response))

		status, _ := eval.Select(response, []string{"data", "status"})
		test.Equal(t, status, any("active"))
	}
}

func TestMockOverrideBeatsPredicate(t *testing.T) {
	src := `
### update
POST /update
=> { "ok": u8, "token": str? }
MOCK => { "ok": random(1, 2) }
@OK: this.ok == 0
###
`
	doc := resolve(t, src)
	endpoint := &doc.Endpoints[0]

	g := mock.New(3)
	for range 50 {
		response, err := g.Response(endpoint, nil)
		test.Ok(t, err)

		value := response.(map[string]any)["ok"]
		test.True(t, eval.Equal(value, 1) || eval.Equal(value, 2), test.Context("got %v", value))
	}
}

func TestNoResponse(t *testing.T) {
	doc := resolve(t, "@BASERES = { \"code\": u8, \"data\": * }\n### ping\nGET /ping\n=>\n###\n")

	response, err := mock.New(5).Response(&doc.Endpoints[0], nil)
	test.Ok(t, err)

	object := response.(map[string]any)
	test.Equal(t, object["data"], nil)
	test.True(t, eval.Equal(object["code"], 0), test.Context("default predicate should hold, got %v", object["code"]))
}

func TestRequest(t *testing.T) {
	src := `
@user = { "username": "testuser1" }
@token: str

### login
POST /login
{ "username": str, "token": @token }
=>
MOCK @user => { "userid": 1 }
###

### plain
POST /plain
{ "username": str, "token": @token }
=>
###
`
	doc := resolve(t, src)
	g := mock.New(11)

	login, _ := doc.GetEndpoint("login")
	body, err := g.Request(login, nil)
	test.Ok(t, err)
	test.True(t, eval.Equal(body, map[string]any{"username": "testuser1"}), test.Context("got %v", body))

	vars := func(name string) (any, bool) {
		if name == "token" {
			return "T", true
		}
		return nil, false
	}

	plain, _ := doc.GetEndpoint("plain")
	body, err = g.Request(plain, vars)
	test.Ok(t, err)

	object := body.(map[string]any)
	test.Equal(t, object["token"], any("T"))
	username, ok := object["username"].(string)
	test.True(t, ok)
	test.Equal(t, len(username), 8)
}

func TestBuiltins(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	g := mock.New(21, mock.WithClock(clock))
	funcs := g.Funcs()

	t.Run("random integers", func(t *testing.T) {
		for range 100 {
			value, err := funcs["random"]([]any{1.0, 3.0})
			test.Ok(t, err)
			n, ok := value.(int64)
			test.True(t, ok)
			test.True(t, n >= 1 && n <= 3, test.Context("got %d", n))
		}
	})

	t.Run("random floats", func(t *testing.T) {
		value, err := funcs["random"]([]any{0.5, 1.5})
		test.Ok(t, err)
		f, ok := value.(float64)
		test.True(t, ok)
		test.True(t, f >= 0.5 && f <= 1.5)
	})

	t.Run("random bad bounds", func(t *testing.T) {
		_, err := funcs["random"]([]any{3.0, 1.0})
		test.Err(t, err)
	})

	t.Run("random wide integer range", func(t *testing.T) {
		const limit = 1 << 53
		for range 100 {
			value, err := funcs["random"]([]any{-float64(limit), float64(limit)})
			test.Ok(t, err)
			n, ok := value.(int64)
			test.True(t, ok)
			test.True(t, n >= -limit && n <= limit, test.Context("got %d", n))
		}
	})

	t.Run("random bounds too large", func(t *testing.T) {
		_, err := funcs["random"]([]any{-9e18, 9e18})
		test.Err(t, err)
	})

	t.Run("random_str", func(t *testing.T) {
		value, err := funcs["random_str"]([]any{6.0})
		test.Ok(t, err)
		test.Equal(t, len(value.(string)), 6)
	})

	t.Run("random_str bad length", func(t *testing.T) {
		_, err := funcs["random_str"]([]any{-1.0})
		test.Err(t, err)
	})

	t.Run("pick", func(t *testing.T) {
		value, err := funcs["pick"]([]any{"a", "b"})
		test.Ok(t, err)
		test.True(t, value == "a" || value == "b")

		_, err = funcs["pick"](nil)
		test.Err(t, err)
	})

	t.Run("now", func(t *testing.T) {
		value, err := funcs["now"](nil)
		test.Ok(t, err)
		test.Equal(t, value, any("2024-03-01T12:00:00Z"))
	})

	t.Run("random_bool", func(t *testing.T) {
		value, err := funcs["random_bool"](nil)
		test.Ok(t, err)
		_, ok := value.(bool)
		test.True(t, ok)
	})
}

func resolve(tb testing.TB, src string) spec.Document {
	tb.Helper()

	p, err := parser.New("test", strings.NewReader(src), func(pos syntax.Position, msg string) {
		tb.Fatalf("%s: %s", pos, msg)
	})
	test.Ok(tb, err)

	file, err := p.Parse()
	test.Ok(tb, err)

	doc, err := spec.ResolveFile(file)
	test.Ok(tb, err)
	test.Ok(tb, doc.Err())

	return doc
}
