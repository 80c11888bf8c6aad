package transcript

import (
	"encoding/json"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// Variant is one recognised payload shape. The set is closed: only the types
// in this file implement it.
type Variant interface {
	resolve(sel *Selector) string
}

// DirectTranscript is a top-level "transcript" string.
type DirectTranscript struct{ Text string }

// AlternativesList is a top-level "alternatives" list.
type AlternativesList struct{ Alternatives []Alternative }

// ResultSegment is one element of a "results" list. Any of the fields may be empty.
type ResultSegment struct {
	Alternatives []Alternative
	Transcript   string
	Text         string
}

// ResultSegments is a top-level "results" list.
type ResultSegments struct{ Segments []ResultSegment }

// PlainText is a top-level "text" string.
type PlainText struct{ Text string }

// PlainValue is a top-level "value" string.
type PlainValue struct{ Value string }

func (v DirectTranscript) resolve(*Selector) string { return strings.TrimSpace(v.Text) }

func (v AlternativesList) resolve(sel *Selector) string {
	text, ok := sel.Select(v.Alternatives)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func (v ResultSegments) resolve(sel *Selector) string {
	parts := make([]string, 0, len(v.Segments))
	for _, seg := range v.Segments {
		if s := seg.resolve(sel); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (seg ResultSegment) resolve(sel *Selector) string {
	if len(seg.Alternatives) > 0 {
		if text, ok := sel.Select(seg.Alternatives); ok {
			if text = strings.TrimSpace(text); text != "" {
				return text
			}
		}
	}
	if text := strings.TrimSpace(seg.Transcript); text != "" {
		return text
	}
	return strings.TrimSpace(seg.Text)
}

func (v PlainText) resolve(*Selector) string  { return strings.TrimSpace(v.Text) }
func (v PlainValue) resolve(*Selector) string { return strings.TrimSpace(v.Value) }

// Payload is a recognition event payload decomposed into the shapes it
// carries, in resolution order.
type Payload struct {
	Variants []Variant
}

// TextPayload wraps a plain transcript string.
func TextPayload(text string) Payload {
	return Payload{Variants: []Variant{DirectTranscript{Text: text}}}
}

// ParseMap builds a Payload from a decoded JSON object. Unknown fields and
// fields of the wrong type are ignored.
func ParseMap(m map[string]any) Payload {
	var p Payload
	if s, ok := m["transcript"].(string); ok {
		p.Variants = append(p.Variants, DirectTranscript{Text: s})
	}
	if list, ok := m["alternatives"].([]any); ok {
		p.Variants = append(p.Variants, AlternativesList{Alternatives: parseAlternatives(list)})
	}
	if list, ok := m["results"].([]any); ok {
		segs := make([]ResultSegment, 0, len(list))
		for _, item := range list {
			segs = append(segs, parseSegment(item))
		}
		p.Variants = append(p.Variants, ResultSegments{Segments: segs})
	}
	if s, ok := m["text"].(string); ok {
		p.Variants = append(p.Variants, PlainText{Text: s})
	}
	if s, ok := m["value"].(string); ok {
		p.Variants = append(p.Variants, PlainValue{Value: s})
	}
	return p
}

// ParseStruct builds a Payload from a protobuf Struct.
func ParseStruct(s *structpb.Struct) Payload {
	if s == nil {
		return Payload{}
	}
	return ParseMap(s.AsMap())
}

// ParseJSON decodes raw JSON into a Payload. A bare JSON string is treated as a
// direct transcript; anything that is neither an object nor a string yields an
// empty Payload.
func ParseJSON(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return Payload{}, nil
	}
	var s structpb.Value
	if err := s.UnmarshalJSON(raw); err != nil {
		return Payload{}, err
	}
	switch k := s.GetKind().(type) {
	case *structpb.Value_StructValue:
		return ParseStruct(k.StructValue), nil
	case *structpb.Value_StringValue:
		return TextPayload(k.StringValue), nil
	default:
		return Payload{}, nil
	}
}

// MarshalJSON renders the payload back into its map form for logging.
func (p Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.Variants))
	for _, v := range p.Variants {
		switch v := v.(type) {
		case DirectTranscript:
			m["transcript"] = v.Text
		case AlternativesList:
			m["alternatives"] = alternativesJSON(v.Alternatives)
		case ResultSegments:
			segs := make([]map[string]any, 0, len(v.Segments))
			for _, seg := range v.Segments {
				sm := map[string]any{}
				if len(seg.Alternatives) > 0 {
					sm["alternatives"] = alternativesJSON(seg.Alternatives)
				}
				if seg.Transcript != "" {
					sm["transcript"] = seg.Transcript
				}
				if seg.Text != "" {
					sm["text"] = seg.Text
				}
				segs = append(segs, sm)
			}
			m["results"] = segs
		case PlainText:
			m["text"] = v.Text
		case PlainValue:
			m["value"] = v.Value
		}
	}
	return json.Marshal(m)
}

func alternativesJSON(alts []Alternative) []map[string]any {
	out := make([]map[string]any, 0, len(alts))
	for _, a := range alts {
		am := map[string]any{"transcript": a.Text}
		if a.Confidence != nil {
			am["confidence"] = *a.Confidence
		}
		out = append(out, am)
	}
	return out
}

func parseAlternatives(list []any) []Alternative {
	alts := make([]Alternative, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			alts = append(alts, Alternative{Text: v})
		case map[string]any:
			var a Alternative
			if s, ok := v["transcript"].(string); ok {
				a.Text = s
			} else if s, ok := v["text"].(string); ok {
				a.Text = s
			}
			if c, ok := v["confidence"].(float64); ok {
				a.Confidence = &c
			}
			alts = append(alts, a)
		}
	}
	return alts
}

func parseSegment(item any) ResultSegment {
	var seg ResultSegment
	m, ok := item.(map[string]any)
	if !ok {
		return seg
	}
	if list, ok := m["alternatives"].([]any); ok {
		seg.Alternatives = parseAlternatives(list)
	}
	if s, ok := m["transcript"].(string); ok {
		seg.Transcript = s
	}
	if s, ok := m["text"].(string); ok {
		seg.Text = s
	}
	return seg
}
