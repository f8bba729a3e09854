package sentiment

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const graphDataURL = "https://production.dataviz.cnn.io/index/fearandgreed/graphdata"

// Provider supplies the current 0-100 fear & greed score.
type Provider interface {
	Score() (int, error)
}

// FearGreedClient fetches the CNN fear & greed index with a JSON file cache.
type FearGreedClient struct {
	Client    *http.Client
	CacheFile string
	CacheTTL  time.Duration

	lastScore int
	hasScore  bool
}

// NewFearGreedClient creates a client with optional proxy support.
func NewFearGreedClient(cacheFile string, cacheTTL time.Duration, proxyURL string) *FearGreedClient {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &FearGreedClient{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		CacheFile: cacheFile,
		CacheTTL:  cacheTTL,
	}
}

type cacheEntry struct {
	Timestamp int64  `json:"timestamp"`
	Score     int    `json:"score"`
	Rating    string `json:"rating"`
}

// Score returns the current index value, serving from the cache file while it
// is fresh. When the fetch fails, a stale cached value is better than none;
// only with no cache at all does the error propagate (callers then treat
// sentiment as NEUTRAL).
func (f *FearGreedClient) Score() (int, error) {
	if entry, ok := f.loadCache(); ok {
		if time.Since(time.Unix(entry.Timestamp, 0)) <= f.CacheTTL {
			f.lastScore, f.hasScore = entry.Score, true
			return entry.Score, nil
		}
	}

	score, err := f.fetch()
	if err != nil {
		if f.hasScore {
			log.Printf("[WARN] fear/greed fetch failed, using last value %d: %v", f.lastScore, err)
			return f.lastScore, nil
		}
		if entry, ok := f.loadCache(); ok {
			log.Printf("[WARN] fear/greed fetch failed, using stale cache %d: %v", entry.Score, err)
			return entry.Score, nil
		}
		return 0, err
	}

	f.lastScore, f.hasScore = score, true
	f.saveCache(cacheEntry{Timestamp: time.Now().Unix(), Score: score, Rating: Rating(score)})
	return score, nil
}

// graphData is the subset of the CNN response this client reads.
type graphData struct {
	FearAndGreed struct {
		Score float64 `json:"score"`
	} `json:"fear_and_greed"`
}

func (f *FearGreedClient) fetch() (int, error) {
	req, err := http.NewRequest("GET", graphDataURL, nil)
	if err != nil {
		return 0, err
	}
	// CNN rejects requests without a browser user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch fear/greed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("fear/greed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var data graphData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("decode fear/greed: %w", err)
	}
	score := int(data.FearAndGreed.Score)
	if score < 0 || score > 100 {
		return 0, fmt.Errorf("fear/greed: score %d out of range", score)
	}
	return score, nil
}

func (f *FearGreedClient) loadCache() (cacheEntry, bool) {
	if f.CacheFile == "" {
		return cacheEntry{}, false
	}
	data, err := os.ReadFile(f.CacheFile)
	if err != nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("[WARN] corrupt fear/greed cache %s: %v", f.CacheFile, err)
		return cacheEntry{}, false
	}
	return entry, true
}

func (f *FearGreedClient) saveCache(entry cacheEntry) {
	if f.CacheFile == "" {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.CacheFile), 0755); err != nil {
		log.Printf("[WARN] create cache dir: %v", err)
		return
	}
	if err := os.WriteFile(f.CacheFile, data, 0644); err != nil {
		log.Printf("[WARN] write fear/greed cache: %v", err)
	}
}
