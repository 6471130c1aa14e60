package queue

import (
	"context"
	"encoding/json"
	"fmt"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/offshore-atlas/backend/internal/storage"
	"github.com/offshore-atlas/backend/pkg/logger"
	"github.com/offshore-atlas/backend/pkg/store"
)

// AnnotateMessage asks the worker to merge analytics output (pagerank,
// centrality, community ids) onto existing nodes. The payload sits in S3
// as a JSON object keyed by node id.
type AnnotateMessage struct {
	JobID string `json:"job_id"`
	Key   string `json:"key"`
}

// ProcessAnnotateMessage fetches the analytics export and applies it.
// Attributes merge onto the nodes; ids the graph does not know are
// skipped by the store.
func ProcessAnnotateMessage(ctx context.Context, client *awss3.Client, writer store.GraphWriter, body string) error {
	var msg AnnotateMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("decode annotate message: %w", err)
	}
	if msg.Key == "" {
		return fmt.Errorf("annotate message %s has no key", msg.JobID)
	}

	raw, err := storage.GetFile(ctx, client, msg.Key)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", msg.Key, err)
	}

	var attrs map[string]map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return fmt.Errorf("decode annotations %s: %w", msg.Key, err)
	}

	if err := writer.AnnotateNodes(ctx, attrs); err != nil {
		return fmt.Errorf("annotate nodes: %w", err)
	}

	logger.Info("Annotation complete", "job_id", msg.JobID, "key", msg.Key, "nodes", len(attrs))
	return nil
}
