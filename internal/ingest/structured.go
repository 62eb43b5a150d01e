package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"tejas.dev/portfolio-api/internal/domain"
)

// Shape is the structural classification of a parsed YAML or JSON document.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeFlatFacts
	ShapeQnAList
)

// QnA is a single question/answer pair.
type QnA struct {
	Q string
	A string
}

// KeyFacts holds the flattened facts found under one top-level key.
type KeyFacts struct {
	Key   string
	Facts []string
}

// Structured is a parsed YAML/JSON document. Exactly one of Facts, Pairs or
// Loose is populated, selected by Shape.
type Structured struct {
	Shape Shape
	Facts []KeyFacts
	Pairs []QnA
	Loose []string
}

var errInvalidJSON = errors.New("invalid json")

// ParseStructured decodes YAML or JSON and classifies its shape. Key order is
// preserved so that repeated loads of the same file produce the same records.
func ParseStructured(raw []byte, format domain.Format) (*Structured, error) {
	if format == domain.FormatJSON {
		root, err := parseJSON(raw)
		if err != nil {
			return nil, err
		}
		return Classify(root), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = resolve(doc.Content[0])
	}
	return Classify(root), nil
}

// parseJSON decodes JSON into the same node tree yaml.v3 produces, walking
// the token stream so object keys keep their file order. A repeated key keeps
// its first position and its last value, as encoding/json does.
func parseJSON(raw []byte) (*yaml.Node, error) {
	if !json.Valid(raw) {
		return nil, errInvalidJSON
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	root, err := jsonValue(dec)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return root, nil
}

func jsonValue(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		if v == '[' {
			seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				item, err := jsonValue(dec)
				if err != nil {
					return nil, err
				}
				seq.Content = append(seq.Content, item)
			}
			_, err := dec.Token() // ]
			return seq, err
		}

		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		seen := make(map[string]int)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			val, err := jsonValue(dec)
			if err != nil {
				return nil, err
			}
			if at, dup := seen[key]; dup {
				m.Content[at+1] = val
				continue
			}
			seen[key] = len(m.Content)
			m.Content = append(m.Content, scalar("!!str", key), val)
		}
		_, err := dec.Token() // }
		return m, err
	case string:
		return scalar("!!str", v), nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return scalar("!!int", v.String()), nil
		}
		return scalar("!!float", v.String()), nil
	case bool:
		return scalar("!!bool", strconv.FormatBool(v)), nil
	case nil:
		return scalar("!!null", "null"), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// Classify decides the shape of a parsed document root.
func Classify(root *yaml.Node) *Structured {
	if root == nil {
		return &Structured{Shape: ShapeUnknown}
	}

	if pairs, ok := qnaPairs(root); ok {
		return &Structured{Shape: ShapeQnAList, Pairs: pairs}
	}

	if root.Kind == yaml.MappingNode {
		s := &Structured{Shape: ShapeFlatFacts}
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i].Value
			var facts []string
			flatten(root.Content[i+1], []string{key}, &facts)
			if len(facts) == 0 {
				continue
			}
			s.Facts = append(s.Facts, KeyFacts{Key: key, Facts: facts})
		}
		return s
	}

	var facts []string
	flatten(root, nil, &facts)
	return &Structured{Shape: ShapeUnknown, Loose: facts}
}

// qnaPairs reports whether root is a non-empty list of mappings that all carry
// "q" and "a" keys. Pairs with an empty question or answer are dropped.
func qnaPairs(root *yaml.Node) ([]QnA, bool) {
	if root.Kind != yaml.SequenceNode || len(root.Content) == 0 {
		return nil, false
	}

	pairs := make([]QnA, 0, len(root.Content))
	for _, item := range root.Content {
		item = resolve(item)
		if item.Kind != yaml.MappingNode {
			return nil, false
		}
		q, hasQ := mappingValue(item, "q")
		a, hasA := mappingValue(item, "a")
		if !hasQ || !hasA {
			return nil, false
		}
		pair := QnA{Q: nodeText(q), A: nodeText(a)}
		if pair.Q == "" || pair.A == "" {
			continue
		}
		pairs = append(pairs, pair)
	}
	return pairs, true
}

func mappingValue(m *yaml.Node, key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return resolve(m.Content[i+1]), true
		}
	}
	return nil, false
}

func nodeText(n *yaml.Node) string {
	if n.Kind == yaml.ScalarNode {
		if n.Tag == "!!null" {
			return ""
		}
		return strings.TrimSpace(n.Value)
	}
	var facts []string
	flatten(n, nil, &facts)
	return strings.TrimSpace(strings.Join(facts, "; "))
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// flatten emits one "path: value" line per scalar leaf. Path segments are
// joined with ": " and sequence indices are attached to their parent key,
// e.g. "education[0]: level: PU".
func flatten(n *yaml.Node, path []string, out *[]string) {
	n = resolve(n)
	if n == nil {
		return
	}

	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			flatten(c, path, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			flatten(n.Content[i+1], appendPath(path, n.Content[i].Value), out)
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			flatten(c, indexPath(path, i), out)
		}
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return
		}
		if len(path) == 0 {
			*out = append(*out, n.Value)
			return
		}
		*out = append(*out, fmt.Sprintf("%s: %s", strings.Join(path, ": "), n.Value))
	}
}

func appendPath(path []string, key string) []string {
	next := make([]string, len(path), len(path)+1)
	copy(next, path)
	return append(next, key)
}

func indexPath(path []string, i int) []string {
	idx := fmt.Sprintf("[%d]", i)
	if len(path) == 0 {
		return []string{idx}
	}
	next := make([]string, len(path))
	copy(next, path)
	next[len(next)-1] += idx
	return next
}

// kindFromFilename infers the kind of a non-Q&A structured file.
func kindFromFilename(filename string) domain.SourceKind {
	name := stem(filename)
	switch {
	case strings.Contains(name, "qna"):
		return domain.KindQnA
	case strings.Contains(name, "timeline"):
		return domain.KindTimeline
	case strings.Contains(name, "profile"):
		return domain.KindProfile
	case strings.Contains(name, "links"):
		return domain.KindLinks
	default:
		return domain.KindProfile
	}
}

func loadStructured(doc domain.SourceDocument) ([]domain.Record, domain.SourceKind, error) {
	s, err := ParseStructured(doc.Raw, doc.Format)
	if err != nil {
		return nil, kindFromFilename(doc.Filename), err
	}

	switch s.Shape {
	case ShapeQnAList:
		records := make([]domain.Record, 0, len(s.Pairs))
		for i, pair := range s.Pairs {
			r := newRecord(doc, domain.KindQnA, fmt.Sprintf("Q: %s\nA: %s", pair.Q, pair.A))
			r.Metadata = map[string]any{"idx": i}
			records = append(records, r)
		}
		return records, domain.KindQnA, nil

	case ShapeFlatFacts:
		kind := kindFromFilename(doc.Filename)
		records := make([]domain.Record, 0, len(s.Facts))
		for _, kf := range s.Facts {
			r := newRecord(doc, kind, strings.Join(kf.Facts, "\n"))
			r.Metadata = map[string]any{"key": kf.Key}
			records = append(records, r)
		}
		return records, kind, nil

	default:
		kind := kindFromFilename(doc.Filename)
		if len(s.Loose) == 0 {
			return nil, kind, nil
		}
		return []domain.Record{newRecord(doc, kind, strings.Join(s.Loose, "\n"))}, kind, nil
	}
}
