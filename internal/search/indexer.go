// Package search publishes cohort entries to Elasticsearch so analysts can
// drill into individual relationships after a run.
package search

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/models"
)

const defaultBatchSize = 500

// CohortDocument is the indexed form of one cohort entry.
type CohortDocument struct {
	models.CohortEntry
	RunID       string    `json:"runId"`
	Fingerprint string    `json:"fingerprint"`
	CacheKey    string    `json:"cacheKey"`
	Cutoff      time.Time `json:"cutoff"`
}

type CohortIndexer struct {
	client    *elasticsearch.Client
	prefix    string
	batchSize int
	logger    logger.Logger
}

func NewCohortIndexer(client *elasticsearch.Client, prefix string, log logger.Logger) *CohortIndexer {
	if prefix == "" {
		prefix = "relationship-cohorts"
	}
	return &CohortIndexer{
		client:    client,
		prefix:    strings.ToLower(prefix),
		batchSize: defaultBatchSize,
		logger:    log.Named("cohort-indexer"),
	}
}

// IndexName is stable per cache key: re-running the same snapshot, scope
// and settings overwrites its documents, while a run under other settings
// or another scope lands in its own index.
func (x *CohortIndexer) IndexName(res *models.Result, key string) string {
	fp := res.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	sum := sha1.Sum([]byte(key))
	return x.prefix + "-" + strings.ToLower(fp) + "-" + hex.EncodeToString(sum[:4])
}

// IndexResult bulk-indexes every cohort entry of res under the index for
// key and returns the index name and document count.
func (x *CohortIndexer) IndexResult(ctx context.Context, key string, res *models.Result) (string, int, error) {
	index := x.IndexName(res, key)

	var entries []models.CohortEntry
	entries = append(entries, res.NewCustomerEntries...)
	entries = append(entries, res.RelationshipEntries...)
	entries = append(entries, res.FamiliarEntries...)

	for start := 0; start < len(entries); start += x.batchSize {
		end := start + x.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := x.bulk(ctx, index, key, res, entries[start:end]); err != nil {
			return index, start, apperrors.NewIndexFailedError(index, err)
		}
	}

	x.logger.Info("indexed cohort entries", map[string]interface{}{
		"index":     index,
		"documents": len(entries),
	})
	return index, len(entries), nil
}

func (x *CohortIndexer) bulk(ctx context.Context, index, key string, res *models.Result, entries []models.CohortEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_id": documentID(e)},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		doc := CohortDocument{
			CohortEntry: e,
			RunID:       res.RunID,
			Fingerprint: res.Fingerprint,
			CacheKey:    key,
			Cutoff:      res.Cutoff,
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index: index,
		Body:  &buf,
	}
	resp, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("bulk request failed: %s", resp.String())
	}

	var body bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if body.Errors {
		return body.firstError()
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

func (b bulkResponse) firstError() error {
	failed := 0
	var first string
	for _, item := range b.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = result.Error.Type + ": " + result.Error.Reason
			}
		}
	}
	return fmt.Errorf("%d bulk items failed, first: %s", failed, first)
}

func documentID(e models.CohortEntry) string {
	h := sha1.New()
	for _, part := range []string{string(e.Kind), string(e.Customer), e.Location, e.Provider, e.Baseline.Format("2006-01-02")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
