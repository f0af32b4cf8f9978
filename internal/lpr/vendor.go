package lpr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Profile describes how to talk to one LPR vendor's HTTP API: where its
// endpoints live and how to extract a capture from its event payload.
// Profiles are registered at startup; the HTTP controller itself has no
// per-vendor branching.
type Profile struct {
	Name        string
	EventPath   string
	StatusPath  string
	CapturePath string

	// Parse interprets a vendor event payload. It returns ErrParse for
	// payloads that do not describe a recognition.
	Parse func(body []byte) (*Capture, error)
}

var (
	vendorMu sync.RWMutex
	vendors  = make(map[string]Profile)
)

// RegisterVendor installs or replaces a vendor profile. Call during
// startup before any controller is constructed.
func RegisterVendor(p Profile) {
	vendorMu.Lock()
	defer vendorMu.Unlock()
	vendors[strings.ToLower(p.Name)] = p
}

// VendorProfile looks up a registered profile by name.
func VendorProfile(name string) (Profile, bool) {
	vendorMu.RLock()
	defer vendorMu.RUnlock()
	p, ok := vendors[strings.ToLower(name)]
	return p, ok
}

// VendorNames returns the registered vendor names.
func VendorNames() []string {
	vendorMu.RLock()
	defer vendorMu.RUnlock()
	names := make([]string, 0, len(vendors))
	for name := range vendors {
		names = append(names, name)
	}
	return names
}

// fieldRules drives the generic payload parser: dotted paths into the
// JSON document and the scale the vendor reports confidence in (100 for
// percent vendors, 1 for unit-interval vendors).
type fieldRules struct {
	plate      string
	confidence string
	scale      float64
	image      string
	eventID    string
	captured   string
}

// parseWithRules extracts a capture from a JSON document per the rules.
func parseWithRules(body []byte, rules fieldRules) (*Capture, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	plate, ok := lookupString(doc, rules.plate)
	if !ok || plate == "" {
		return nil, fmt.Errorf("%w: missing plate field %q", ErrParse, rules.plate)
	}

	confidence, ok := lookupNumber(doc, rules.confidence)
	if !ok {
		return nil, fmt.Errorf("%w: missing confidence field %q", ErrParse, rules.confidence)
	}
	if rules.scale > 1 {
		confidence /= rules.scale
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	capture := &Capture{
		Plate:      plate,
		Confidence: confidence,
		Raw:        json.RawMessage(body),
	}
	if rules.image != "" {
		capture.ImageRef, _ = lookupString(doc, rules.image)
	}
	if rules.eventID != "" {
		if id, ok := lookupString(doc, rules.eventID); ok {
			capture.VendorEventID = id
		} else if n, ok := lookupNumber(doc, rules.eventID); ok {
			capture.VendorEventID = strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	if rules.captured != "" {
		if ts, ok := lookupString(doc, rules.captured); ok {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				capture.CapturedAt = t.UTC()
			}
		}
	}

	return capture, nil
}

// lookup walks a dotted path through nested JSON objects and arrays;
// numeric segments index into arrays.
func lookup(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func lookupString(doc any, path string) (string, bool) {
	v, ok := lookup(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func lookupNumber(doc any, path string) (float64, bool) {
	v, ok := lookup(doc, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// rulesParser builds a Parse function from field rules.
func rulesParser(rules fieldRules) func([]byte) (*Capture, error) {
	return func(body []byte) (*Capture, error) {
		return parseWithRules(body, rules)
	}
}

func init() {
	// Hikvision ANPR: confidence in percent, nested plate block.
	RegisterVendor(Profile{
		Name:        "hikvision",
		EventPath:   "/ISAPI/Traffic/ANPR/lastEvent",
		StatusPath:  "/ISAPI/System/status",
		CapturePath: "/ISAPI/Traffic/ANPR/capture",
		Parse: rulesParser(fieldRules{
			plate:      "Plate.plateNumber",
			confidence: "Plate.confidence",
			scale:      100,
			image:      "Plate.picName",
			eventID:    "Plate.serialNo",
			captured:   "Plate.captureTime",
		}),
	})

	// Dahua ITC: flat fields, confidence in percent.
	RegisterVendor(Profile{
		Name:        "dahua",
		EventPath:   "/cgi-bin/recordFinder.cgi?action=lastEvent",
		StatusPath:  "/cgi-bin/magicBox.cgi?action=getSystemInfo",
		CapturePath: "/cgi-bin/snapManager.cgi?action=attachFileProc",
		Parse: rulesParser(fieldRules{
			plate:      "PlateNumber",
			confidence: "Confidence",
			scale:      100,
			image:      "ImagePath",
			eventID:    "EventID",
			captured:   "CaptureTime",
		}),
	})

	// Axis license plate verifier: confidence already 0..1.
	RegisterVendor(Profile{
		Name:        "axis",
		EventPath:   "/local/fflprapp/events.cgi",
		StatusPath:  "/axis-cgi/systemready.cgi",
		CapturePath: "/local/fflprapp/capture.cgi",
		Parse: rulesParser(fieldRules{
			plate:      "plateUTF8",
			confidence: "plateConfidence",
			scale:      1,
			image:      "imageURL",
			eventID:    "eventID",
			captured:   "timestamp",
		}),
	})

	// OpenALPR agent: best result first in the results array,
	// confidence in percent.
	RegisterVendor(Profile{
		Name:        "openalpr",
		EventPath:   "/api/events/latest",
		StatusPath:  "/api/status",
		CapturePath: "/api/capture",
		Parse: rulesParser(fieldRules{
			plate:      "results.0.plate",
			confidence: "results.0.confidence",
			scale:      100,
			image:      "image_path",
			eventID:    "uuid",
			captured:   "timestamp",
		}),
	})
}

// customProfile builds a profile from a device's explicit path and field
// overrides for vendors without a built-in profile.
func customProfile(eventPath, statusPath, capturePath string, params map[string]string) Profile {
	rules := fieldRules{
		plate:      "plate",
		confidence: "confidence",
		scale:      1,
		image:      "image",
		eventID:    "id",
		captured:   "captured_at",
	}
	if v, ok := params["plateField"]; ok {
		rules.plate = v
	}
	if v, ok := params["confidenceField"]; ok {
		rules.confidence = v
	}
	if v, ok := params["confidenceScale"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rules.scale = f
		}
	}
	if v, ok := params["imageField"]; ok {
		rules.image = v
	}
	if v, ok := params["eventIdField"]; ok {
		rules.eventID = v
	}

	return Profile{
		Name:        "custom",
		EventPath:   eventPath,
		StatusPath:  statusPath,
		CapturePath: capturePath,
		Parse:       rulesParser(rules),
	}
}
