package openproject

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Link is a HAL link object. An unset link arrives as {"href": null} and
// decodes to an empty Href.
type Link struct {
	Href  string `json:"href"`
	Title string `json:"title,omitempty"`
}

// IsSet reports whether the link points somewhere.
func (l Link) IsSet() bool { return l.Href != "" }

// ID extracts the trailing numeric segment of the href, or 0.
func (l Link) ID() int {
	return IDFromHref(l.Href)
}

// TitleOr returns the link title, or def when the link is unset or untitled.
func (l Link) TitleOr(def string) string {
	if l.Title == "" {
		return def
	}
	return l.Title
}

// IDFromHref parses "/api/v3/statuses/7" into 7. Anything else yields 0.
func IDFromHref(href string) int {
	if href == "" {
		return 0
	}
	i := strings.LastIndexByte(href, '/')
	n, err := strconv.Atoi(href[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Formattable is OpenProject's rich-text value.
type Formattable struct {
	Format string `json:"format,omitempty"`
	Raw    string `json:"raw"`
	HTML   string `json:"html,omitempty"`
}

// Collection is one page of a HAL collection.
type Collection[T any] struct {
	Total    int `json:"total"`
	Count    int `json:"count"`
	PageSize int `json:"pageSize"`
	Offset   int `json:"offset"`
	Embedded struct {
		Elements []T `json:"elements"`
	} `json:"_embedded"`
}

// Elements returns the embedded items, never nil.
func (c *Collection[T]) Elements() []T {
	if c == nil || c.Embedded.Elements == nil {
		return []T{}
	}
	return c.Embedded.Elements
}

// apiError is the HAL error document.
type apiError struct {
	Type            string `json:"_type"`
	ErrorIdentifier string `json:"errorIdentifier"`
	Message         string `json:"message"`
	Embedded        struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"_embedded"`
	// Legacy validation shape: {"errors": {"field": ["msg", ...]}}.
	Errors map[string]any `json:"errors"`
}

// summary reduces the document to a message and a detail list.
func (e apiError) summary() (string, []string) {
	var details []string
	for _, sub := range e.Embedded.Errors {
		if sub.Message != "" {
			details = append(details, sub.Message)
		}
	}
	embedded := len(details)
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		switch msgs := e.Errors[field].(type) {
		case []any:
			for _, m := range msgs {
				details = append(details, field+": "+toString(m))
			}
		default:
			details = append(details, field+": "+toString(msgs))
		}
	}

	msg := e.Message
	if embedded > 0 {
		msg = strings.Join(details[:embedded], "; ")
	}
	if e.ErrorIdentifier != "" {
		id := e.ErrorIdentifier[strings.LastIndexByte(e.ErrorIdentifier, ':')+1:]
		if msg == "" {
			msg = id
		} else {
			msg = id + ": " + msg
		}
	}
	return msg, details
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
