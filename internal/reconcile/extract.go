package reconcile

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Strategy pulls one value out of a raw backend response.
type Strategy struct {
	// Name identifies the strategy in logs and tests.
	Name string
	// Extract returns the value and whether the strategy matched.
	Extract func(doc gjson.Result) (string, bool)
}

// StringAt matches a non-empty string at a gjson path.
func StringAt(path string) Strategy {
	return Strategy{
		Name: path,
		Extract: func(doc gjson.Result) (string, bool) {
			v := doc.Get(path)
			if v.Type != gjson.String {
				return "", false
			}
			s := strings.TrimSpace(v.String())
			return s, s != ""
		},
	}
}

// IDAt matches a non-empty string or a number at a gjson path. Numbers are
// rendered using their raw JSON text so large ids keep every digit.
func IDAt(path string) Strategy {
	return Strategy{
		Name: path,
		Extract: func(doc gjson.Result) (string, bool) {
			v := doc.Get(path)
			switch v.Type {
			case gjson.String:
				s := strings.TrimSpace(v.String())
				return s, s != ""
			case gjson.Number:
				return v.Raw, true
			default:
				return "", false
			}
		},
	}
}

// Extractor resolves the server id and title from a response by trying
// strategies in order. The first match wins.
type Extractor struct {
	ID    []Strategy
	Title []Strategy
}

// NewExtractor builds an extractor from ordered field paths.
func NewExtractor(idPaths, titlePaths []string) Extractor {
	e := Extractor{}
	for _, p := range idPaths {
		e.ID = append(e.ID, IDAt(p))
	}
	for _, p := range titlePaths {
		e.Title = append(e.Title, StringAt(p))
	}
	return e
}

// Result is the identity of a chat as the client knows it.
type Result struct {
	ServerID string
	Title    string
}

// Match records which strategy produced a value, for logging.
type Match struct {
	IDStrategy    string
	TitleStrategy string
}

// Extract reads id and title from raw. Unmatched fields fall back to prev;
// an unmatched title with no previous title falls back to localTitle.
// Invalid JSON matches nothing.
func (e Extractor) Extract(raw []byte, prev Result, localTitle string) (Result, Match) {
	out := prev
	var m Match

	var doc gjson.Result
	if gjson.ValidBytes(raw) {
		doc = gjson.ParseBytes(raw)
	}

	if id, name, ok := first(e.ID, doc); ok {
		out.ServerID = id
		m.IDStrategy = name
	}
	if title, name, ok := first(e.Title, doc); ok {
		out.Title = title
		m.TitleStrategy = name
	} else if out.Title == "" {
		out.Title = localTitle
	}
	return out, m
}

func first(strategies []Strategy, doc gjson.Result) (string, string, bool) {
	if !doc.Exists() {
		return "", "", false
	}
	for _, s := range strategies {
		if v, ok := s.Extract(doc); ok {
			return v, s.Name, true
		}
	}
	return "", "", false
}
