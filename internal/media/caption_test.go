package media

import "testing"

func TestParseCaptionXML(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0.0" dur="2.1">Hello everyone,</text>
  <text start="2.1" dur="1.8">  welcome back  </text>
  <text start="3.9" dur="0.5"></text>
  <text start="4.4" dur="2.0">to the channel.</text>
</transcript>`)

	got, err := parseCaptionXML(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := "Hello everyone, welcome back to the channel."
	if got != want {
		t.Fatalf("transcript = %q, want %q", got, want)
	}
}

func TestParseCaptionXMLEmptyTrack(t *testing.T) {
	if _, err := parseCaptionXML([]byte(`<transcript><text> </text></transcript>`)); err == nil {
		t.Fatal("expected error for empty track")
	}
}

func TestParseCaptionXMLMalformed(t *testing.T) {
	if _, err := parseCaptionXML([]byte(`not xml at all`)); err == nil {
		t.Fatal("expected error for malformed XML")
	}
}
