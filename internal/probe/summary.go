package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/jsonapi-probe/pkg/jsonapi"
)

const (
	maxHTMLBodyBytes  = 1 << 20 // 1 MiB
	maxSnippetRunes   = 256
	emptyBodySnippet  = "<empty>"
	defaultHTMLPrefix = "html error page"
)

// summarize renders a one-line description of a failed call.
func summarize(d jsonapi.Details) string {
	if d.HTTPStatus == 0 {
		return "network error: " + d.NetworkError
	}

	status := strings.TrimSpace(fmt.Sprintf("%d %s", d.HTTPStatus, d.HTTPReason))
	if detail := bodySummary(d); detail != "" {
		return status + ": " + detail
	}
	return status
}

func bodySummary(d jsonapi.Details) string {
	mediaType, _, _ := mime.ParseMediaType(d.ContentType)
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		if title := htmlTitle(d.Bytes); title != "" {
			return title
		}
		return defaultHTMLPrefix
	case jsonapi.IsJSONContentType(d.ContentType):
		if msg := jsonMessage(d.Text); msg != "" {
			return msg
		}
	}
	return snippet(d.Text)
}

// htmlTitle extracts the most descriptive heading of an HTML error page.
func htmlTitle(body []byte) string {
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	return firstNonEmpty(
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
		extract(`meta[name="description"]`),
	)
}

// jsonMessage picks a human readable message out of common error payload shapes.
func jsonMessage(text string) string {
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error_description", "detail", "title", "error"} {
		switch v := payload[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return emptyBodySnippet
	}
	if r := []rune(s); len(r) > maxSnippetRunes {
		return string(r[:maxSnippetRunes]) + "..."
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
