// Package question fetches quiz items from a remote opentdb-compatible
// catalog.
package question

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/victornm/triviad/internal/domain"
	"github.com/victornm/triviad/internal/errors"
)

type Config struct {
	// BaseURL of the catalog API, e.g. https://opentdb.com/api.php
	BaseURL string

	// Client is optional; a client with sane timeouts is used by default.
	Client *http.Client
}

type Source struct {
	baseURL string
	hc      *http.Client
}

func NewSource(c Config) *Source {
	hc := c.Client
	if hc == nil {
		hc = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   3 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 10,
			},
		}
	}

	return &Source{
		baseURL: c.BaseURL,
		hc:      hc,
	}
}

type apiResponse struct {
	ResponseCode int `json:"response_code"`
	Results      []struct {
		Category         string   `json:"category"`
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
	} `json:"results"`
}

// FetchBatch requests count multiple-choice questions. Any network, decode
// or catalog-side failure is reported as unavailable; the caller treats it
// as a supply error and aborts the session.
func (s *Source) FetchBatch(ctx context.Context, count int) ([]domain.Question, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("question: parse base url: %v", err)
	}
	q := u.Query()
	q.Set("amount", strconv.Itoa(count))
	q.Set("type", "multiple")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("question: build request: %v", err)
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("question: catalog returned %d", resp.StatusCode))
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("question: decode response"),
			errors.WithCause(err))
	}

	if ar.ResponseCode != 0 || len(ar.Results) == 0 {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("question: unusable batch: code=%d results=%d", ar.ResponseCode, len(ar.Results)))
	}

	qs := make([]domain.Question, 0, len(ar.Results))
	for _, r := range ar.Results {
		// The catalog HTML-escapes its text.
		incorrect := make([]string, 0, len(r.IncorrectAnswers))
		for _, a := range r.IncorrectAnswers {
			incorrect = append(incorrect, html.UnescapeString(a))
		}

		qs = append(qs, domain.Question{
			Text:          html.UnescapeString(r.Question),
			CorrectAnswer: html.UnescapeString(r.CorrectAnswer),
			Incorrect:     incorrect,
			Category:      html.UnescapeString(r.Category),
		})
	}

	return qs, nil
}
