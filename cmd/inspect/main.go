package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/objones25/fuzzgroup/internal/config"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/milvus"
	redisstore "github.com/objones25/fuzzgroup/internal/storage/redis"
)

func printJob(job *storage.Job) {
	fmt.Println("\nJob:")
	fmt.Println("----")
	fmt.Printf("ID: %s\n", job.ID)
	if job.Name != "" {
		fmt.Printf("Name: %s\n", job.Name)
	}
	fmt.Printf("Status: %s\n", job.Status)
	fmt.Printf("Ready for cluster: %v\n", job.ReadyForCluster)
	fmt.Printf("Records: %d\n", len(job.RecordIDs))
	fmt.Printf("Clusters: %d (max %d items each)\n", job.Config.NumberOfClusters, job.Config.MaxItemsPerCluster)
	fmt.Printf("Field order: %v\n", job.Config.Order)
	fmt.Printf("Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
}

func printResult(result *storage.Result, verbose bool) {
	fmt.Println("\nLatest Result:")
	fmt.Println("--------------")
	fmt.Printf("Iteration: %d\n", result.Iteration)
	fmt.Printf("State: %s\n", result.State)
	if n := len(result.Loss); n > 0 {
		fmt.Printf("Loss: %.6f (first %.6f)\n", result.Loss[n-1], result.Loss[0])
	}

	for k, group := range result.Groups {
		fmt.Printf("\nGroup %d (%d items)\n", k+1, len(group))
		if verbose {
			for _, id := range group {
				fmt.Printf("  - %s\n", id)
			}
		} else {
			fmt.Printf("  %s\n", strings.Join(group, ", "))
		}
	}

	if len(result.Unclustered) > 0 {
		fmt.Printf("\nUnclustered (%d items)\n", len(result.Unclustered))
		fmt.Printf("  %s\n", strings.Join(result.Unclustered, ", "))
	}
}

// syncRecords copies the job's ready records into the Milvus collection
func syncRecords(ctx context.Context, store *redisstore.Store, cfg milvus.Config, job *storage.Job) error {
	records, err := store.Records(ctx, job.RecordIDs)
	if err != nil {
		return err
	}

	ready := make([]*storage.Record, 0, len(records))
	for _, r := range records {
		if r.Ready(len(milvus.VectorFields)) {
			ready = append(ready, r)
		}
	}

	vectors, err := milvus.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer vectors.Close()

	if err := vectors.Insert(ctx, ready); err != nil {
		return err
	}
	fmt.Printf("\nCopied %d of %d records to %s\n", len(ready), len(job.RecordIDs), cfg.CollectionName)
	return nil
}

func main() {
	jobID := flag.String("job", "", "job ID to inspect")
	enqueue := flag.Bool("enqueue", false, "push the job onto the pending queue before inspecting")
	verbose := flag.Bool("v", false, "print one record ID per line")
	syncMilvus := flag.Bool("sync", false, "copy the job's embedded records from Redis into Milvus")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *jobID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := redisstore.New(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *enqueue {
		if err := store.Enqueue(ctx, *jobID); err != nil {
			log.Fatal().Err(err).Msg("Failed to enqueue job")
		}
		fmt.Printf("Queued job %s on %s\n", *jobID, cfg.Redis.Queue)
	}

	job, err := store.GetJob(ctx, *jobID)
	if err != nil {
		if storage.IsNotFound(err) {
			fmt.Printf("❌ Job not found: %s\n", *jobID)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("Failed to load job")
	}
	printJob(job)

	if *syncMilvus {
		if !cfg.MilvusEnabled() {
			log.Fatal().Msg("MILVUS_ADDR is not set")
		}
		if err := syncRecords(ctx, store, cfg.Milvus, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to copy records to Milvus")
		}
	}

	result, err := store.GetResult(ctx, *jobID)
	switch {
	case storage.IsNotFound(err):
		fmt.Println("\nNo result yet")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to load result")
	default:
		printResult(result, *verbose)
	}
}
