package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"reelrelay/internal/core/domain"
)

const (
	DefaultBaseURL      = "https://api.apify.com/v2"
	DefaultActor        = "apify~instagram-scraper"
	DefaultResultsLimit = 50

	defaultPollInterval = 3 * time.Second
)

// MediaFetcher saves a direct media URL at a local path.
type MediaFetcher interface {
	DownloadTo(ctx context.Context, mediaURL, path string) error
}

// PageFetcher saves the media behind a post page into a directory.
type PageFetcher interface {
	DownloadTo(ctx context.Context, pageURL, dir string) error
}

// Options configures an InstagramFeed.
type Options struct {
	Token             string
	Actor             string
	BaseURL           string
	ResultsLimit      int
	RequestsPerMinute int
	PollInterval      time.Duration
}

// InstagramFeed lists Instagram profile posts through an Apify actor and
// materializes their media with a direct download, falling back to yt-dlp.
type InstagramFeed struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
	media   MediaFetcher
	pages   PageFetcher
	logger  *log.Logger
}

// NewInstagramFeed creates a feed. pages may be nil when yt-dlp is not
// available.
func NewInstagramFeed(opts Options, media MediaFetcher, pages PageFetcher, logger *log.Logger) (*InstagramFeed, error) {
	if opts.Token == "" {
		return nil, errors.New("apify token not set")
	}
	if opts.Actor == "" {
		opts.Actor = DefaultActor
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.ResultsLimit <= 0 {
		opts.ResultsLimit = DefaultResultsLimit
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &InstagramFeed{
		opts:    opts,
		client:  &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(limit, 1),
		media:   media,
		pages:   pages,
		logger:  logger,
	}, nil
}

// item is the subset of the actor's dataset fields we use.
type item struct {
	ShortCode     string `json:"shortCode"`
	Type          string `json:"type"`
	ProductType   string `json:"productType"`
	Title         string `json:"title"`
	Caption       string `json:"caption"`
	VideoURL      string `json:"videoUrl"`
	OwnerUsername string `json:"ownerUsername"`
	URL           string `json:"url"`
	Error         string `json:"error"`
	ErrorDesc     string `json:"errorDescription"`
}

func (it item) post(profile string) domain.Post {
	owner := it.OwnerUsername
	if owner == "" {
		owner = profile
	}
	page := it.URL
	if page == "" {
		page = "https://www.instagram.com/p/" + it.ShortCode + "/"
	}
	return domain.Post{
		ID:       it.ShortCode,
		Owner:    owner,
		IsVideo:  it.Type == "Video" || it.ProductType == "clips" || it.VideoURL != "",
		Title:    it.Title,
		Caption:  it.Caption,
		PageURL:  page,
		MediaURL: it.VideoURL,
	}
}

// ProfileURL returns the canonical profile page of handle.
func ProfileURL(handle string) string {
	return "https://www.instagram.com/" + url.PathEscape(handle) + "/"
}

// FetchPosts runs the actor for one profile and yields its posts in the
// order the actor returned them. The run happens when iteration starts.
func (f *InstagramFeed) FetchPosts(ctx context.Context, profile string) iter.Seq2[domain.Post, error] {
	return func(yield func(domain.Post, error) bool) {
		items, err := f.scrape(ctx, profile)
		if err != nil {
			yield(domain.Post{}, fmt.Errorf("profile %s: %w", profile, err))
			return
		}
		for _, it := range items {
			if it.ShortCode == "" {
				if it.Error != "" {
					yield(domain.Post{}, fmt.Errorf("profile %s: %s: %s", profile, it.Error, it.ErrorDesc))
					return
				}
				continue
			}
			if !yield(it.post(profile), nil) {
				return
			}
		}
	}
}

// Download saves post's media into dir as <id>.mp4, or lets yt-dlp pick the
// name when the direct URL is missing or fails.
func (f *InstagramFeed) Download(ctx context.Context, post domain.Post, dir string) error {
	if post.MediaURL != "" {
		err := f.media.DownloadTo(ctx, post.MediaURL, filepath.Join(dir, post.ID+".mp4"))
		if err == nil {
			return nil
		}
		if f.pages == nil || post.PageURL == "" {
			return err
		}
		f.logger.Warn("direct download failed, falling back to yt-dlp", "post", post.ID, "err", err)
	}
	if f.pages != nil && post.PageURL != "" {
		return f.pages.DownloadTo(ctx, post.PageURL, dir)
	}
	return domain.Permanent(fmt.Errorf("post %s has no media or page URL", post.ID))
}

func (f *InstagramFeed) scrape(ctx context.Context, profile string) ([]item, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	input := map[string]interface{}{
		"directUrls":   []string{ProfileURL(profile)},
		"resultsType":  "posts",
		"resultsLimit": f.opts.ResultsLimit,
	}
	runID, err := f.startActorRun(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start actor run: %w", err)
	}
	f.logger.Debug("actor run started", "profile", profile, "apify_run", runID)

	raw, err := f.waitAndGetResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	var items []item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode dataset items: %w", err)
	}
	return items, nil
}

func (f *InstagramFeed) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.opts.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.opts.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (f *InstagramFeed) startActorRun(ctx context.Context, input map[string]interface{}) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	req, err := f.newRequest(ctx, http.MethodPost, "/acts/"+f.opts.Actor+"/runs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed to start actor: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", errors.New("actor run id missing from response")
	}
	return result.Data.ID, nil
}

func (f *InstagramFeed) waitAndGetResults(ctx context.Context, runID string) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.opts.PollInterval):
		}

		req, err := f.newRequest(ctx, http.MethodGet, "/actor-runs/"+runID, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("poll actor run: status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body.Close()

		switch status.Data.Status {
		case "SUCCEEDED":
			return f.getDatasetItems(ctx, status.Data.DefaultDatasetID)
		case "FAILED", "ABORTED", "TIMED-OUT":
			return nil, fmt.Errorf("actor run failed with status: %s", status.Data.Status)
		}
	}
}

func (f *InstagramFeed) getDatasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	req, err := f.newRequest(ctx, http.MethodGet, "/datasets/"+datasetID+"/items?clean=true&format=json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch dataset items: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
