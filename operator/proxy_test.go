package operator

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
)

func TestBuildProxiesNamesMatch(t *testing.T) {
	reg, _ := newTestRegistry()
	bundle, err := reg.BuildProxies(nil)
	if err != nil {
		t.Fatal(err)
	}

	// The signatures text and runtime text declare the same method
	// names, with the Async suffix trimmed in both.
	methodRe := regexp.MustCompile(`def (\w+)\(`)
	names := func(text string) map[string]bool {
		out := map[string]bool{}
		for _, m := range methodRe.FindAllStringSubmatch(text, -1) {
			if strings.HasPrefix(m[1], "_") {
				continue // __init__ and runtime helpers
			}
			out[m[1]] = true
		}
		return out
	}
	rt, sig := names(bundle.Runtime), names(bundle.Signatures)
	for name := range rt {
		if !sig[name] {
			t.Errorf("runtime method %s missing from signatures", name)
		}
	}
	for name := range sig {
		if !rt[name] {
			t.Errorf("signature method %s missing from runtime", name)
		}
	}

	if rt["DescribeAsync"] {
		t.Error("Async suffix not trimmed in runtime text")
	}
	if !rt["Describe"] {
		t.Error("trimmed method Describe missing")
	}
}

func TestBuildProxiesRuntimeLayout(t *testing.T) {
	reg, _ := newTestRegistry()
	bundle, err := reg.BuildProxies(nil)
	if err != nil {
		t.Fatal(err)
	}

	// Host-binding stub first.
	if !strings.HasPrefix(bundle.Runtime, "_host = _host_invoke\n") {
		t.Errorf("runtime does not begin with the host-binding stub:\n%s", bundle.Runtime[:80])
	}
	for _, want := range []string{
		"class TestModel(dict):",
		"class SimpleOperator:",
		"class TestRootOperator:",
		`_PROXY_TYPES["SimpleOperator"] = SimpleOperator`,
	} {
		if !strings.Contains(bundle.Runtime, want) {
			t.Errorf("runtime missing %q", want)
		}
	}
	if !strings.Contains(bundle.Signatures, "Adds two numbers.") {
		t.Error("signatures missing method doc")
	}
}

func TestComposeScriptDeclaresInstances(t *testing.T) {
	reg, _ := newTestRegistry()
	inv := NewInvoker(reg)
	bundle, err := reg.BuildProxies(nil)
	if err != nil {
		t.Fatal(err)
	}

	// Two live instances of the same type get suffixed variable names.
	for i := 0; i < 2; i++ {
		if _, err := inv.Invoke(context.Background(), "TestRootOperator", "GetSimpleOperator", "", nil); err != nil {
			t.Fatal(err)
		}
	}

	script := reg.ComposeScript(bundle, "return 1")
	if !strings.Contains(script, "testrootoperator = TestRootOperator()") {
		t.Error("root instance not declared parameterless")
	}
	if !strings.Contains(script, "simpleoperator = SimpleOperator(") {
		t.Error("first live instance not declared")
	}
	if !strings.Contains(script, "simpleoperator2 = SimpleOperator(") {
		t.Error("duplicate instance not suffixed with an index")
	}
	if !strings.HasSuffix(strings.TrimRight(script, "\n"), "return 1") {
		t.Error("user script not appended last")
	}
}

func TestBuildProxiesToolCatalog(t *testing.T) {
	reg, _ := newTestRegistry()
	bundle, err := reg.BuildProxies([]ToolCatalog{{
		Server: "weather",
		Tools: []ToolSpec{{
			Name:        "get_forecast",
			Description: "Forecast for a city.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(bundle.Runtime, "class weather:") {
		t.Error("tool server class missing from runtime")
	}
	if !strings.Contains(bundle.Runtime, `_mcp("weather", "get_forecast", kwargs)`) {
		t.Error("tool proxy body missing")
	}
	if !strings.Contains(bundle.Signatures, "def get_forecast(city)") {
		t.Error("tool signature missing schema parameter names")
	}
}
