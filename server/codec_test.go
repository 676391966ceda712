package server

import (
	"bytes"
	"strings"
	"testing"
)

func TestCBORCodec_Deterministic(t *testing.T) {
	codec := CBORCodec{}
	msg := &EvaluateResponse{
		Success: true,
		Result:  "[object Object]",
		Type:    "object",
		Handle:  &ValueHandle{ID: "h-1", Type: "object"},
	}

	a, err := codec.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := codec.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("canonical encoding should be byte-stable")
	}

	var got EvaluateResponse
	if err := codec.Unmarshal(a, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Handle == nil || got.Handle.ID != "h-1" {
		t.Errorf("Handle = %+v, want h-1", got.Handle)
	}
}

func TestCBORCodec_BadInput(t *testing.T) {
	var msg EvaluateRequest
	if err := (CBORCodec{}).Unmarshal([]byte{0xff, 0x00}, &msg); err == nil {
		t.Error("Unmarshal of garbage should fail")
	}
}

func TestJSONCodec_FieldNames(t *testing.T) {
	data, err := JSONCodec{}.Marshal(&EvaluateResponse{Success: false, Error: "boom", ErrorLine: 3})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"success":false`, `"error":"boom"`, `"errorLine":3`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "handle") {
		t.Errorf("JSON %s should omit an empty handle", s)
	}
}

func TestJSONCodec_EmptyBody(t *testing.T) {
	var msg ReleaseHandleRequest
	if err := (JSONCodec{}).Unmarshal(nil, &msg); err != nil {
		t.Errorf("Unmarshal(nil) = %v, want nil", err)
	}
}
