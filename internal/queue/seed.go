package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/offshore-atlas/backend/internal/storage"
	"github.com/offshore-atlas/backend/pkg/loader/csv"
	"github.com/offshore-atlas/backend/pkg/logger"
	"github.com/offshore-atlas/backend/pkg/store"
)

// SeedMessage asks the worker to import one CSV bundle into the graph.
type SeedMessage struct {
	JobID string `json:"job_id"`
	// BundlePrefix is the S3 key prefix holding nodes-*.csv and
	// relationships.csv.
	BundlePrefix string `json:"bundle_prefix"`
	BatchSize    int    `json:"batch_size,omitempty"`
}

// ProcessSeedMessage downloads the bundle and loads nodes first, then
// relationships, so every edge endpoint exists before the edge is
// written.
func ProcessSeedMessage(ctx context.Context, client *awss3.Client, writer store.GraphWriter, body string) error {
	var msg SeedMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("decode seed message: %w", err)
	}
	if msg.BundlePrefix == "" {
		return fmt.Errorf("seed message %s has no bundle prefix", msg.JobID)
	}

	keys, err := storage.ListFilesWithPrefix(ctx, client, msg.BundlePrefix)
	if err != nil {
		return fmt.Errorf("list bundle %s: %w", msg.BundlePrefix, err)
	}

	totalNodes := 0
	var relKey string
	for _, key := range keys {
		base := path.Base(key)
		if base == csv.RelationshipsFile {
			relKey = key
			continue
		}
		nodeType, ok := csv.NodeFiles[base]
		if !ok {
			logger.Debug("Skipping unrecognized bundle file", "key", key)
			continue
		}

		raw, err := storage.GetFile(ctx, client, key)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}
		nodes, err := csv.ParseNodes(bytes.NewReader(raw), nodeType)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if err := csv.LoadNodes(ctx, writer, nodes, msg.BatchSize); err != nil {
			return fmt.Errorf("load %s: %w", key, err)
		}
		totalNodes += len(nodes)
		logger.Info("Loaded node file", "job_id", msg.JobID, "file", base, "count", len(nodes))
	}

	if relKey == "" {
		logger.Info("Bundle has no relationships file", "job_id", msg.JobID, "prefix", msg.BundlePrefix)
		return nil
	}

	raw, err := storage.GetFile(ctx, client, relKey)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", relKey, err)
	}
	edges, err := csv.ParseRelationships(bytes.NewReader(raw), msg.BundlePrefix)
	if err != nil {
		return fmt.Errorf("parse %s: %w", relKey, err)
	}
	if err := csv.LoadEdges(ctx, writer, edges, msg.BatchSize); err != nil {
		return fmt.Errorf("load %s: %w", relKey, err)
	}

	logger.Info("Seed complete",
		"job_id", msg.JobID,
		"prefix", strings.TrimSuffix(msg.BundlePrefix, "/"),
		"nodes", totalNodes,
		"edges", len(edges),
	)
	return nil
}
