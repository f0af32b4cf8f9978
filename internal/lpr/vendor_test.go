package lpr

import (
	"errors"
	"math"
	"testing"
)

func TestBuiltinVendorsRegistered(t *testing.T) {
	for _, name := range []string{"hikvision", "dahua", "axis", "openalpr"} {
		if _, ok := VendorProfile(name); !ok {
			t.Errorf("vendor %q not registered", name)
		}
	}
	if _, ok := VendorProfile("nonexistent"); ok {
		t.Error("unknown vendor should not resolve")
	}
}

func TestHikvisionParseNormalizesPercentConfidence(t *testing.T) {
	profile, _ := VendorProfile("hikvision")

	body := []byte(`{
		"Plate": {
			"plateNumber": "12가3456",
			"confidence": 92,
			"picName": "cap_001.jpg",
			"serialNo": "7781",
			"captureTime": "2026-03-01T09:30:00Z"
		}
	}`)

	capture, err := profile.Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if capture.Plate != "12가3456" {
		t.Errorf("plate = %q", capture.Plate)
	}
	if math.Abs(capture.Confidence-0.92) > 1e-9 {
		t.Errorf("confidence = %v, want 0.92", capture.Confidence)
	}
	if capture.ImageRef != "cap_001.jpg" {
		t.Errorf("image = %q", capture.ImageRef)
	}
	if capture.VendorEventID != "7781" {
		t.Errorf("event id = %q", capture.VendorEventID)
	}
	if capture.CapturedAt.IsZero() {
		t.Error("captured time not parsed")
	}
}

func TestAxisParseKeepsUnitConfidence(t *testing.T) {
	profile, _ := VendorProfile("axis")

	capture, err := profile.Parse([]byte(`{"plateUTF8": "AB123CD", "plateConfidence": 0.88}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if math.Abs(capture.Confidence-0.88) > 1e-9 {
		t.Errorf("confidence = %v, want 0.88", capture.Confidence)
	}
}

func TestOpenALPRParseUsesFirstResult(t *testing.T) {
	profile, _ := VendorProfile("openalpr")

	body := []byte(`{
		"uuid": "e-42",
		"results": [
			{"plate": "78라1234", "confidence": 95.3},
			{"plate": "78라1284", "confidence": 61.0}
		]
	}`)

	capture, err := profile.Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if capture.Plate != "78라1234" {
		t.Errorf("plate = %q, want first result", capture.Plate)
	}
	if math.Abs(capture.Confidence-0.953) > 1e-9 {
		t.Errorf("confidence = %v, want 0.953", capture.Confidence)
	}
	if capture.VendorEventID != "e-42" {
		t.Errorf("event id = %q", capture.VendorEventID)
	}
}

func TestParseMissingPlateIsParseError(t *testing.T) {
	profile, _ := VendorProfile("dahua")

	_, err := profile.Parse([]byte(`{"Confidence": 90}`))
	if !errors.Is(err, ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}

	_, err = profile.Parse([]byte(`not json at all`))
	if !errors.Is(err, ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestCustomProfileFieldOverrides(t *testing.T) {
	profile := customProfile("/events", "/health", "/snap", map[string]string{
		"plateField":      "data.number",
		"confidenceField": "data.score",
		"confidenceScale": "100",
	})

	capture, err := profile.Parse([]byte(`{"data": {"number": "56다7890", "score": 81}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if capture.Plate != "56다7890" {
		t.Errorf("plate = %q", capture.Plate)
	}
	if math.Abs(capture.Confidence-0.81) > 1e-9 {
		t.Errorf("confidence = %v, want 0.81", capture.Confidence)
	}
}

func TestRegisterVendorReplaces(t *testing.T) {
	RegisterVendor(Profile{
		Name:      "testvendor",
		EventPath: "/v1/events",
		Parse: rulesParser(fieldRules{
			plate:      "plate",
			confidence: "conf",
			scale:      1,
		}),
	})

	profile, ok := VendorProfile("testvendor")
	if !ok {
		t.Fatal("registered vendor not found")
	}
	capture, err := profile.Parse([]byte(`{"plate": "X1", "conf": 0.75}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if capture.Plate != "X1" || capture.Confidence != 0.75 {
		t.Errorf("capture = %+v", capture)
	}
}

func TestConfidenceClamped(t *testing.T) {
	parse := rulesParser(fieldRules{plate: "p", confidence: "c", scale: 1})

	capture, err := parse([]byte(`{"p": "X", "c": 1.7}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if capture.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", capture.Confidence)
	}

	capture, err = parse([]byte(`{"p": "X", "c": -3}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if capture.Confidence != 0 {
		t.Errorf("confidence = %v, want clamped to 0", capture.Confidence)
	}
}
