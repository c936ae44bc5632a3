package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecode_Start(t *testing.T) {
	data := []byte(`{"event":"start","streamSid":"MZ1","start":{"callSid":"CA123","customParameters":{"From":"+15551234567"}}}`)
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Event != EventStart {
		t.Fatalf("event=%q, want start", msg.Event)
	}
	if msg.Start.CallSID != "CA123" {
		t.Fatalf("callSid=%q, want CA123", msg.Start.CallSID)
	}
	if msg.Start.CustomParameters["From"] != "+15551234567" {
		t.Fatalf("From=%q", msg.Start.CustomParameters["From"])
	}
}

func TestDecode_StartMissingCallSID(t *testing.T) {
	_, err := Decode([]byte(`{"event":"start","streamSid":"MZ1","start":{}}`))
	if err == nil {
		t.Fatalf("expected error for missing callSid")
	}
	de, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type=%T, want *DecodeError", err)
	}
	if de.Code != "bad_request" || de.Param != "start.callSid" {
		t.Fatalf("code=%q param=%q", de.Code, de.Param)
	}
}

func TestDecode_MediaRequiresPayload(t *testing.T) {
	if _, err := Decode([]byte(`{"event":"media","media":{}}`)); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	msg, err := Decode([]byte(`{"event":"media","media":{"payload":"AAAA"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Media.Payload != "AAAA" {
		t.Fatalf("payload=%q", msg.Media.Payload)
	}
}

func TestDecode_MarkAndStop(t *testing.T) {
	msg, err := Decode([]byte(`{"event":"mark","mark":{"name":"end_of_speech"}}`))
	if err != nil {
		t.Fatalf("Decode mark: %v", err)
	}
	if msg.Mark.Name != MarkEndOfSpeech {
		t.Fatalf("mark=%q", msg.Mark.Name)
	}
	if _, err := Decode([]byte(`{"event":"stop","stop":{"callSid":"CA123"}}`)); err != nil {
		t.Fatalf("Decode stop: %v", err)
	}
}

func TestDecode_RejectsUnknownAndInvalid(t *testing.T) {
	if _, err := Decode([]byte(`{"event":"connected"}`)); err == nil {
		t.Fatalf("expected error for unsupported event")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := Decode([]byte(`{}`)); err == nil {
		t.Fatalf("expected error for missing event")
	}
}

func TestOutboundShapes(t *testing.T) {
	b, err := json.Marshal(NewClear("MZ1"))
	if err != nil {
		t.Fatalf("marshal clear: %v", err)
	}
	if !strings.Contains(string(b), `"event":"clear"`) || !strings.Contains(string(b), `"streamSid":"MZ1"`) {
		t.Fatalf("clear frame=%s", b)
	}

	b, err = json.Marshal(NewMark("MZ1", MarkEndOfSpeech))
	if err != nil {
		t.Fatalf("marshal mark: %v", err)
	}
	if !strings.Contains(string(b), `"name":"end_of_speech"`) {
		t.Fatalf("mark frame=%s", b)
	}

	b, err = json.Marshal(NewMedia("MZ1", "b64audio"))
	if err != nil {
		t.Fatalf("marshal media: %v", err)
	}
	if !strings.Contains(string(b), `"payload":"b64audio"`) {
		t.Fatalf("media frame=%s", b)
	}
}
