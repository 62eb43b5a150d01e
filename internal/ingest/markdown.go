package ingest

import (
	"strings"

	"gopkg.in/yaml.v3"

	"tejas.dev/portfolio-api/internal/domain"
)

const frontmatterDelimiter = "---"

// SplitFrontmatter separates a leading YAML frontmatter block, delimited by
// lines of three dashes, from the Markdown body. Content without frontmatter,
// or with frontmatter that does not parse to a mapping, is returned whole as
// the body.
func SplitFrontmatter(raw string) (map[string]any, string) {
	content := strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != frontmatterDelimiter {
		return nil, strings.TrimSpace(content)
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			end = i
			break
		}
	}
	if end == -1 {
		return nil, strings.TrimSpace(content)
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &fm); err != nil {
		return nil, strings.TrimSpace(content)
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, strings.TrimSpace(body)
}

func loadMarkdown(doc domain.SourceDocument) ([]domain.Record, domain.SourceKind, error) {
	fm, body := SplitFrontmatter(string(doc.Raw))
	if body == "" {
		return nil, domain.KindNotes, nil
	}

	r := newRecord(doc, domain.KindNotes, body)
	if len(fm) > 0 {
		r.Metadata = make(map[string]any, len(fm))
		for k, v := range fm {
			if k == "content" {
				continue
			}
			r.Metadata[k] = v
		}
		if tags, ok := fm["tags"]; ok {
			r.Metadata["tags"] = normalizeTags(tags)
		}
	}
	return []domain.Record{r}, domain.KindNotes, nil
}

// normalizeTags accepts either a YAML list or a comma separated string.
func normalizeTags(v any) []string {
	var tags []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
	}
	return tags
}
