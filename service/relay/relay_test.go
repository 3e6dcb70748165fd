package relay

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := json.Marshal(Envelope{
		Origin: "gw-1",
		Target: "c1",
		Frame:  `{"kind":"message","payload":{"id":"m1"}}`,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.Origin != "gw-1" || env.Target != "c1" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Frame != `{"kind":"message","payload":{"id":"m1"}}` {
		t.Fatalf("frame mangled: %s", env.Frame)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := decodeEnvelope([]byte("not json")); err == nil {
		t.Fatal("expected an error for malformed data")
	}
}
