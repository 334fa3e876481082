// Package catalog fetches media records from the AniList GraphQL API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"

	"github.com/theLastOfCats/anishelf/internal/metrics"
	"github.com/theLastOfCats/anishelf/internal/model"
)

// DefaultURL is the public AniList endpoint.
const DefaultURL = "https://graphql.anilist.co"

// pageSize is the most ids AniList accepts in one id_in page.
const pageSize = 50

const mediaQuery = `query ($ids: [Int], $perPage: Int) {
  Page(perPage: $perPage) {
    media(id_in: $ids) {
      id
      type
      format
      status
      episodes
      chapters
      volumes
      genres
      title { romaji english native }
      coverImage { large medium }
    }
  }
}`

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "anilist: http " + strconv.Itoa(e.StatusCode)
}

type AniList struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	attempts uint
	delay    time.Duration
}

// New builds a client limited to rps requests per second. A non-positive rps
// disables limiting.
func New(url string, rps float64, log *slog.Logger) *AniList {
	if url == "" {
		url = DefaultURL
	}
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &AniList{
		url:      url,
		http:     &http.Client{Timeout: 20 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		attempts: 4,
		delay:    time.Second,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlMedia struct {
	ID       int              `json:"id"`
	Type     string           `json:"type"`
	Format   string           `json:"format"`
	Status   string           `json:"status"`
	Episodes *int             `json:"episodes"`
	Chapters *int             `json:"chapters"`
	Volumes  *int             `json:"volumes"`
	Genres   []string         `json:"genres"`
	Title    model.MediaTitle `json:"title"`
	Cover    struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"coverImage"`
}

type gqlResponse struct {
	Data struct {
		Page struct {
			Media []gqlMedia `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (m gqlMedia) toModel() model.Media {
	return model.Media{
		ID:       m.ID,
		Type:     m.Type,
		Format:   m.Format,
		Status:   m.Status,
		Episodes: m.Episodes,
		Chapters: m.Chapters,
		Volumes:  m.Volumes,
		Genres:   m.Genres,
		Title:    m.Title,
		Images:   model.MediaImages{Large: m.Cover.Large, Medium: m.Cover.Medium},
	}
}

// FetchMultipleMediaByIds returns the records AniList knows for ids. Failed
// pages are logged and skipped, so the result may be partial.
func (a *AniList) FetchMultipleMediaByIds(ctx context.Context, ids []int) []model.Media {
	var out []model.Media
	for start := 0; start < len(ids); start += pageSize {
		end := min(start+pageSize, len(ids))
		page, err := a.fetchPage(ctx, ids[start:end])
		if err != nil {
			a.log.Warn("catalog page fetch failed", "ids", end-start, "error", err)
			if ctx.Err() != nil {
				return out
			}
			continue
		}
		out = append(out, page...)
	}
	return out
}

func (a *AniList) fetchPage(ctx context.Context, ids []int) ([]model.Media, error) {
	body, err := json.Marshal(gqlRequest{
		Query:     mediaQuery,
		Variables: map[string]any{"ids": ids, "perPage": len(ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var media []model.Media
	err = retry.Do(
		func() error {
			if err := a.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			got, err := a.post(ctx, body)
			if err != nil {
				return err
			}
			media = got
			return nil
		},
		retry.Attempts(a.attempts),
		retry.Delay(a.delay),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(a.delay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			a.log.Info("Retrying catalog request after error", "attempt", n, "error", err)
		}),
		retry.RetryIf(retryable),
	)
	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}
	return media, nil
}

func (a *AniList) post(ctx context.Context, body []byte) ([]model.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		metrics.CatalogRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			a.log.Warn("Failed to close response body", "error", closeErr)
		}
	}()
	metrics.CatalogRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var decoded gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Errors) > 0 && len(decoded.Data.Page.Media) == 0 {
		return nil, retry.Unrecoverable(fmt.Errorf("anilist: %s", decoded.Errors[0].Message))
	}

	media := make([]model.Media, 0, len(decoded.Data.Page.Media))
	for _, m := range decoded.Data.Page.Media {
		media = append(media, m.toModel())
	}
	return media, nil
}

// retryable reports whether err is worth another attempt: transport errors,
// rate limiting and server errors.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
