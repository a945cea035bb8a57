package canvas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"
	"github.com/gocolly/colly/v2"
)

var ErrRateLimited = errors.New("rate limited by canvas")

// AuthError is returned for 401 and 403 responses. It is fatal for a run.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("canvas rejected credentials (%d): %s", e.StatusCode, e.Message)
}

type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Message)
}

// ParseError means the response did not have the expected shape.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func responseError(r *colly.Response, err error) error {
	if r == nil || r.StatusCode == 0 {
		return err
	}
	url := ""
	if r.Request != nil && r.Request.URL != nil {
		url = r.Request.URL.String()
	}
	message := describeBody(r)

	switch r.StatusCode {
	case 401, 403:
		return &AuthError{StatusCode: r.StatusCode, Message: message}
	case 429:
		if r.Headers != nil {
			if seconds, convErr := strconv.Atoi(r.Headers.Get("Retry-After")); convErr == nil {
				return fmt.Errorf("%w: %w", ErrRateLimited, backoff.RetryAfter(seconds))
			}
		}
		return ErrRateLimited
	default:
		return &StatusError{URL: url, StatusCode: r.StatusCode, Message: message}
	}
}

type apiErrors struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Message string `json:"message"`
}

// describeBody pulls a human readable message out of an error response,
// either a Canvas JSON error document or the title of an HTML page.
func describeBody(r *colly.Response) string {
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 {
		return "empty response"
	}

	if body[0] == '{' {
		var doc apiErrors
		if err := json.Unmarshal(body, &doc); err == nil {
			var messages []string
			for _, e := range doc.Errors {
				messages = append(messages, e.Message)
			}
			if doc.Message != "" {
				messages = append(messages, doc.Message)
			}
			if len(messages) > 0 {
				return strings.Join(messages, "; ")
			}
		}
	}

	if body[0] == '<' {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				return title
			}
		}
	}

	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
