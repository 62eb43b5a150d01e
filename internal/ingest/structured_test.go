package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tejas.dev/portfolio-api/internal/domain"
)

func TestParseStructured_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		format domain.Format
		shape  Shape
	}{
		{"qna list", "- q: a?\n  a: b\n", domain.FormatYAML, ShapeQnAList},
		{"mapping", "name: x\n", domain.FormatYAML, ShapeFlatFacts},
		{"json mapping", `{"name": "x"}`, domain.FormatJSON, ShapeFlatFacts},
		{"json qna", `[{"q": "a?", "a": "b"}]`, domain.FormatJSON, ShapeQnAList},
		{"mixed list", "- q: a?\n  a: b\n- plain\n", domain.FormatYAML, ShapeUnknown},
		{"scalar", "just text\n", domain.FormatYAML, ShapeUnknown},
		{"empty", "", domain.FormatYAML, ShapeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseStructured([]byte(tt.raw), tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, s.Shape)
		})
	}
}

func TestParseStructured_InvalidJSON(t *testing.T) {
	_, err := ParseStructured([]byte(`{"a": 1,}`), domain.FormatJSON)
	require.Error(t, err)
}

func TestParseStructured_FlattensNested(t *testing.T) {
	raw := `
name: Tejas
education:
  - level: PU
    school: ABC PU College
  - level: BE
    school: XYZ Institute
empty: null
`
	s, err := ParseStructured([]byte(raw), domain.FormatYAML)
	require.NoError(t, err)
	require.Equal(t, ShapeFlatFacts, s.Shape)
	require.Len(t, s.Facts, 2)

	assert.Equal(t, KeyFacts{Key: "name", Facts: []string{"name: Tejas"}}, s.Facts[0])
	assert.Equal(t, "education", s.Facts[1].Key)
	assert.Equal(t, []string{
		"education[0]: level: PU",
		"education[0]: school: ABC PU College",
		"education[1]: level: BE",
		"education[1]: school: XYZ Institute",
	}, s.Facts[1].Facts)
}

func TestParseStructured_ResolvesAliases(t *testing.T) {
	raw := `
base: &base
  city: Bengaluru
home: *base
`
	s, err := ParseStructured([]byte(raw), domain.FormatYAML)
	require.NoError(t, err)
	require.Len(t, s.Facts, 2)
	assert.Equal(t, []string{"home: city: Bengaluru"}, s.Facts[1].Facts)
}

func TestLoadStructured_QnA(t *testing.T) {
	doc := domain.SourceDocument{
		Path:     "/data/qna.yaml",
		Filename: "qna.yaml",
		Format:   domain.FormatYAML,
		Raw:      []byte("- q: Where did Tejas do PU?\n  a: ABC PU College (2016–2018).\n- q: ''\n  a: dropped\n"),
	}

	records, kind, err := loadStructured(doc)
	require.NoError(t, err)
	assert.Equal(t, domain.KindQnA, kind)
	require.Len(t, records, 1)
	assert.Equal(t, "Q: Where did Tejas do PU?\nA: ABC PU College (2016–2018).", records[0].Text)
	assert.Equal(t, "qna.yaml (Q&A)", records[0].Label)
}

func TestLoadStructured_OneRecordPerTopLevelKey(t *testing.T) {
	doc := domain.SourceDocument{
		Filename: "my_timeline.yaml",
		Format:   domain.FormatYAML,
		Raw:      []byte("2016:\n  event: PU\n2020:\n  event: Graduated\n"),
	}

	records, kind, err := loadStructured(doc)
	require.NoError(t, err)
	assert.Equal(t, domain.KindTimeline, kind)
	require.Len(t, records, 2)
	assert.Equal(t, "2016: event: PU", records[0].Text)
	assert.Equal(t, "2016", records[0].Metadata["key"])
	assert.Equal(t, "my_timeline.yaml (timeline)", records[1].Label)
}

func TestKindFromFilename(t *testing.T) {
	assert.Equal(t, domain.KindQnA, kindFromFilename("extra_qna.json"))
	assert.Equal(t, domain.KindTimeline, kindFromFilename("Timeline.yaml"))
	assert.Equal(t, domain.KindProfile, kindFromFilename("profile.yml"))
	assert.Equal(t, domain.KindLinks, kindFromFilename("links.yaml"))
	assert.Equal(t, domain.KindProfile, kindFromFilename("facts.yaml"))
}

func TestParseStructured_JSONEscapes(t *testing.T) {
	raw := `{"url": "https:\/\/tejas.dev\/work", "bio": "hi \ud83d\ude00", "age": 27, "remote": true, "ratio": 0.5, "gone": null}`

	s, err := ParseStructured([]byte(raw), domain.FormatJSON)
	require.NoError(t, err)
	require.Equal(t, ShapeFlatFacts, s.Shape)

	assert.Equal(t, []KeyFacts{
		{Key: "url", Facts: []string{"url: https://tejas.dev/work"}},
		{Key: "bio", Facts: []string{"bio: hi 😀"}},
		{Key: "age", Facts: []string{"age: 27"}},
		{Key: "remote", Facts: []string{"remote: true"}},
		{Key: "ratio", Facts: []string{"ratio: 0.5"}},
	}, s.Facts)
}

func TestParseStructured_JSONQnAWithEscapes(t *testing.T) {
	raw := `[{"q": "Portfolio?", "a": "https:\/\/tejas.dev \ud83d\ude80"}]`

	s, err := ParseStructured([]byte(raw), domain.FormatJSON)
	require.NoError(t, err)
	require.Equal(t, ShapeQnAList, s.Shape)
	assert.Equal(t, []QnA{{Q: "Portfolio?", A: "https://tejas.dev 🚀"}}, s.Pairs)
}

func TestParseStructured_JSONDuplicateKeysKeepLastValue(t *testing.T) {
	raw := `{"name": "old", "city": "Mysuru", "name": "Tejas"}`

	s, err := ParseStructured([]byte(raw), domain.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []KeyFacts{
		{Key: "name", Facts: []string{"name: Tejas"}},
		{Key: "city", Facts: []string{"city: Mysuru"}},
	}, s.Facts)
}

func TestParseStructured_JSONNestedKeepsOrder(t *testing.T) {
	raw := `{"z": {"b": 1, "a": [2, {"c": "x"}]}, "y": "last"}`

	s, err := ParseStructured([]byte(raw), domain.FormatJSON)
	require.NoError(t, err)
	require.Len(t, s.Facts, 2)
	assert.Equal(t, []string{"z: b: 1", "z: a[0]: 2", "z: a[1]: c: x"}, s.Facts[0].Facts)
	assert.Equal(t, "y", s.Facts[1].Key)
}
