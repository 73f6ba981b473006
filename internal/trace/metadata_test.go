package trace

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestMetadataPreservesOrder(t *testing.T) {
	var m Metadata
	m.Set("zeta", Int(1))
	m.Set("alpha", String("a"))
	m.Set("mid", Bool(true))
	m.Set("zeta", Int(2))

	keys := m.Keys()
	want := []string{"zeta", "alpha", "mid"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if v, _ := m.Get("zeta"); v.String() != "2" {
		t.Errorf("zeta = %s, want 2", v)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Metadata
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(m) {
		t.Errorf("yaml round trip lost order or values:\n%s", data)
	}

	js, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	if string(js) != `{"zeta":2,"alpha":"a","mid":true}` {
		t.Errorf("json = %s", js)
	}
}

func TestMetadataValueKindsSurviveCodecs(t *testing.T) {
	m := MetadataOf(
		"s", "0123",
		"looks_bool", "true",
		"i", -42,
		"f", 3.0,
		"b", false,
		"n", nil,
		"emoji", "🔥",
	)
	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fromYAML Metadata
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !fromYAML.Equal(m) {
		t.Errorf("yaml mismatch:\n%s", data)
	}

	js, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	var fromJSON Metadata
	if err := fromJSON.UnmarshalJSON(js); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	if !fromJSON.Equal(m) {
		t.Errorf("json mismatch: %s", js)
	}
	if v, _ := fromJSON.Get("f"); v.Kind() != FloatValue {
		t.Errorf("3.0 decoded as %v, want float", v.Kind())
	}
}

func TestMetadataRejectsNested(t *testing.T) {
	var m Metadata
	err := m.UnmarshalJSON([]byte(`{"a":{"b":1}}`))
	if !errors.Is(err, ErrMalformedTrace) {
		t.Errorf("nested object err = %v, want ErrMalformedTrace", err)
	}
	err = m.UnmarshalJSON([]byte(`{"a":[1]}`))
	if !errors.Is(err, ErrMalformedTrace) {
		t.Errorf("array err = %v, want ErrMalformedTrace", err)
	}
	if _, err := ValueOf([]string{"x"}); !errors.Is(err, ErrMalformedTrace) {
		t.Errorf("ValueOf slice err = %v", err)
	}
}
