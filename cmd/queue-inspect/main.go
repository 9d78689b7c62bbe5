// queue-inspect dumps activity queue items for operational debugging:
//
//	go run ./cmd/queue-inspect -project my-project -user user-1
//	go run ./cmd/queue-inspect -failed
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/firestore"

	shared "github.com/quantifiedself/ingest-server/pkg"
	"github.com/quantifiedself/ingest-server/pkg/queue"
	firestorestorage "github.com/quantifiedself/ingest-server/pkg/storage/firestore"
	"github.com/quantifiedself/ingest-server/pkg/types"
)

func main() {
	project := flag.String("project", shared.ProjectID, "GCP project id")
	user := flag.String("user", "", "only items for this user id")
	failed := flag.Bool("failed", false, "only items past the retry ceiling")
	pending := flag.Bool("pending", false, "only unprocessed items")
	limit := flag.Int("limit", 100, "maximum items to print")
	flag.Parse()

	ctx := context.Background()
	fc, err := firestore.NewClient(ctx, *project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "firestore client: %v\n", err)
		os.Exit(1)
	}
	defer fc.Close()

	client := firestorestorage.NewClient(fc)

	q := client.GarminQueue().Where("service_name", "==", shared.ServiceNameGarminHealthAPI)
	if *user != "" {
		q = q.Where("user_id", "==", *user)
	}
	if *pending || *failed {
		q = q.Where("processed", "==", false)
	}
	items, err := q.Limit(*limit).Documents(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}

	printed := 0
	enc := json.NewEncoder(os.Stdout)
	for _, item := range items {
		if *failed && !queue.DefaultBackoff.Exhausted(item.RetryCount) {
			continue
		}
		enc.Encode(inspectRow(item))
		printed++
	}

	fmt.Fprintf(os.Stderr, "%d item(s)\n", printed)
}

func inspectRow(item *types.QueueItem) map[string]interface{} {
	row := map[string]interface{}{
		"id":                item.ID,
		"user_id":           item.UserID,
		"activity_id":       item.ActivityID,
		"retry_count":       item.RetryCount,
		"total_retry_count": item.TotalRetryCount,
		"processed":         item.Processed,
		"next_possible_run": item.NextPossibleRun.Format(time.RFC3339),
		"created_at":        item.CreatedAt.Format(time.RFC3339),
	}
	if item.Processed {
		row["processed_at"] = item.ProcessedAt.Format(time.RFC3339)
	}
	if queue.DefaultBackoff.Exhausted(item.RetryCount) && !item.Processed {
		row["permanently_failed"] = true
	}
	if n := len(item.Errors); n > 0 {
		last := item.Errors[n-1]
		row["error_count"] = n
		row["last_error"] = last.Message
		row["last_error_at"] = last.At.Format(time.RFC3339)
	}
	return row
}
