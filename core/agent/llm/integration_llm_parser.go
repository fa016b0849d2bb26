package llm

import (
	"regexp"
	"strings"

	"integration_server/core/domain"
	"integration_server/pkg/apperr"

	"github.com/goccy/go-json"
)

// extractor pulls a JSON candidate out of generator output.
type extractor func(raw string) (string, bool)

// Tried in order; the first extractor that matches supplies the only
// candidate. A fenced block that does not decode is not retried as raw text.
var extractionChain = []extractor{
	extractFenced,
	extractRaw,
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

func extractFenced(raw string) (string, bool) {
	m := fencePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func extractRaw(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	return s, s != ""
}

// decodeObject runs the extraction chain.
func decodeObject(raw string) (map[string]json.RawMessage, bool) {
	for _, extract := range extractionChain {
		candidate, ok := extract(raw)
		if !ok {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
			return nil, false
		}
		return obj, true
	}
	return nil, false
}

// ParseResourceList turns generator output into resources. Structural
// problems fail the whole response; field problems only degrade a record.
func ParseResourceList(raw string) ([]domain.GeneratedResource, error) {
	obj, ok := decodeObject(raw)
	if !ok {
		return nil, apperr.MalformedResponse("no JSON object found")
	}

	field, ok := obj[ResourcesField]
	if !ok {
		return nil, apperr.MalformedResponse(`missing "resources" field`)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(field, &items); err != nil {
		return nil, apperr.MalformedResponse(`"resources" is not an array`)
	}
	if len(items) == 0 {
		return nil, apperr.MalformedResponse(`"resources" is empty`)
	}

	resources := make([]domain.GeneratedResource, 0, len(items))
	for _, item := range items {
		resources = append(resources, coerceResource(item))
	}
	return resources, nil
}

func coerceResource(item json.RawMessage) domain.GeneratedResource {
	var fields map[string]any
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return domain.PlaceholderResource()
	}
	return domain.GeneratedResource{
		Title:       textOr(fields["title"], domain.PlaceholderTitle),
		Description: textOr(fields["description"], domain.PlaceholderDescription),
		URL:         textOr(fields["url"], domain.PlaceholderURL),
		Type:        domain.ParseResourceType(textOr(fields["type"], "")),
		Category:    domain.ParseResourceCategory(textOr(fields["category"], "")),
		Source:      domain.SourceAISuggested,
	}
}

func textOr(v any, fallback string) string {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
