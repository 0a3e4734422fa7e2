package canonical

import (
	"testing"
)

func TestMarshal_SortsKeysAtEveryDepth(t *testing.T) {
	type inner struct {
		Zebra string `json:"zebra"`
		Apple string `json:"apple"`
	}
	type outer struct {
		B inner  `json:"b"`
		A string `json:"a"`
	}

	v := outer{B: inner{Zebra: "z", Apple: "a"}, A: "x"}
	got, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":"x","b":{"apple":"a","zebra":"z"}}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestMarshal_NoWhitespace(t *testing.T) {
	raw := []byte(`{ "b" : 2 , "a" : 1 }`)
	got, err := MarshalRaw(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1,"b":2}` {
		t.Errorf("unexpected canonical form: %s", got)
	}
}

func TestEqual_IgnoresKeyOrderAndWhitespace(t *testing.T) {
	a := []byte(`{"a":1,"b":2}`)
	b := []byte(`{ "b": 2, "a": 1 }`)
	eq, err := Equal(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Error("expected documents to be canonically equal")
	}
}

func TestMarshal_OmitsSignatureFieldWhenAbsent(t *testing.T) {
	type envelope struct {
		From      string `json:"from"`
		Signature string `json:"signature,omitempty"`
	}
	got, err := Marshal(envelope{From: "did:aeep:abc"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"from":"did:aeep:abc"}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestHash_Deterministic(t *testing.T) {
	v1 := map[string]interface{}{"a": 1, "b": 2}
	v2 := map[string]interface{}{"b": 2, "a": 1}

	h1, err := Hash(v1)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(v2)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("expected equal hashes for canonically equal maps")
	}
}
