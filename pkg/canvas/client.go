package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
	"github.com/tomnomnom/linkheader"

	"github.com/openswoop/rosterwatch/pkg/roster"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultPerPage     = 100
	defaultMaxAttempts = 4
	defaultRetryWait   = time.Second
	defaultUserAgent   = "rosterwatch/1.0"
)

type Config struct {
	BaseURL     string // e.g. https://school.instructure.com/api/v1
	AccountID   string
	Token       string
	Timeout     time.Duration
	PerPage     int
	MaxAttempts uint
	RetryWait   time.Duration
	UserAgent   string
}

type Client struct {
	c   *colly.Collector
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PerPage == 0 {
		cfg.PerPage = defaultPerPage
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = defaultRetryWait
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	// Every run polls the same URLs again, so never skip or cache them
	c := colly.NewCollector(colly.AllowURLRevisit(), colly.UserAgent(cfg.UserAgent))
	c.SetRequestTimeout(cfg.Timeout)

	return &Client{c: c, cfg: cfg}
}

type course struct {
	ID         json.Number `json:"id"`
	Name       string      `json:"name"`
	CourseCode string      `json:"course_code"`
}

type user struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// ListCourses returns every course of the account in the given enrollment term.
func (cl *Client) ListCourses(ctx context.Context, term string) ([]roster.Course, error) {
	query := url.Values{}
	query.Set("enrollment_term_id", term)
	query.Set("per_page", strconv.Itoa(cl.cfg.PerPage))
	first := fmt.Sprintf("%s/accounts/%s/courses?%s", cl.cfg.BaseURL, url.PathEscape(cl.cfg.AccountID), query.Encode())

	var courses []roster.Course
	err := cl.paginate(ctx, first, func(pageURL string, body []byte) error {
		var page []course
		if err := decode(body, &page); err != nil {
			return &ParseError{URL: pageURL, Err: err}
		}
		for _, c := range page {
			if c.ID == "" {
				return &ParseError{URL: pageURL, Err: errors.New("course without id")}
			}
			courses = append(courses, roster.Course{
				ID:   c.ID.String(),
				Name: c.Name,
				Code: c.CourseCode,
				Term: term,
			})
		}
		return nil
	})
	return courses, err
}

// ListInstructors returns the users enrolled as teachers in a course.
func (cl *Client) ListInstructors(ctx context.Context, courseID string) ([]roster.Instructor, error) {
	query := url.Values{}
	query.Add("enrollment_type[]", "teacher")
	query.Set("per_page", strconv.Itoa(cl.cfg.PerPage))
	first := fmt.Sprintf("%s/courses/%s/users?%s", cl.cfg.BaseURL, url.PathEscape(courseID), query.Encode())

	var instructors []roster.Instructor
	err := cl.paginate(ctx, first, func(pageURL string, body []byte) error {
		var page []user
		if err := decode(body, &page); err != nil {
			return &ParseError{URL: pageURL, Err: err}
		}
		for _, u := range page {
			if u.ID == "" {
				return &ParseError{URL: pageURL, Err: errors.New("user without id")}
			}
			instructors = append(instructors, roster.Instructor{ID: u.ID.String(), Name: u.Name})
		}
		return nil
	})
	return instructors, err
}

func decode(body []byte, v interface{}) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return fmt.Errorf("expected a JSON array, got %q", preview(body))
	}
	return json.Unmarshal(body, v)
}

func preview(body []byte) string {
	if len(body) > 64 {
		return string(body[:64]) + "..."
	}
	return string(body)
}

// paginate walks the rel="next" links starting from the first page.
func (cl *Client) paginate(ctx context.Context, first string, each func(pageURL string, body []byte) error) error {
	seen := make(map[string]bool)
	for next := first; next != ""; {
		if seen[next] {
			return fmt.Errorf("pagination loop at %s", next)
		}
		seen[next] = true

		p, err := cl.getWithRetry(ctx, next)
		if err != nil {
			return err
		}
		if err := each(next, p.body); err != nil {
			return err
		}
		next = p.next
	}
	return nil
}

type page struct {
	body []byte
	next string
}

func (cl *Client) getWithRetry(ctx context.Context, pageURL string) (page, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cl.cfg.RetryWait

	return backoff.Retry(ctx, func() (page, error) {
		// colly does not take a context, so check before every request
		if err := ctx.Err(); err != nil {
			return page{}, backoff.Permanent(err)
		}
		p, err := cl.get(pageURL)
		if err == nil {
			return p, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return p, err
		}
		return p, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(cl.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn().Err(err).Str("url", pageURL).Dur("wait", wait).Msg("Retrying canvas request")
		}),
	)
}

func (cl *Client) get(pageURL string) (page, error) {
	var p page
	var failure error

	c := cl.c.Clone() // same backend but without old callbacks
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Authorization", "Bearer "+cl.cfg.Token)
		r.Headers.Set("Accept", "application/json")
	})
	c.OnResponse(func(r *colly.Response) {
		p.body = r.Body
		if r.Headers != nil {
			p.next = nextLink(r.Headers.Get("Link"))
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		failure = responseError(r, err)
	})

	if err := c.Visit(pageURL); err != nil {
		if failure != nil {
			return p, failure
		}
		return p, err
	}
	log.Debug().Str("url", pageURL).Int("bytes", len(p.body)).Msg("Fetched page")
	return p, nil
}

// nextLink returns the target of the rel="next" link, if any. A link may
// carry several space separated relation types.
func nextLink(header string) string {
	for _, link := range linkheader.Parse(header) {
		for _, rel := range strings.Fields(link.Rel) {
			if strings.EqualFold(rel, "next") {
				return link.URL
			}
		}
	}
	return ""
}
