package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"foliomedia/src/common"
	"foliomedia/src/config"
	"foliomedia/src/storage"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./src/cmd/test_upload <bucket> <file> [key]")
		os.Exit(1)
	}

	bucket, filePath := os.Args[1], os.Args[2]
	key := filepath.Base(filePath)
	if len(os.Args) > 3 {
		key = os.Args[3]
	}

	// Load config
	cfg, err := config.Load("migrate.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}

	client := storage.NewClient(cfg, zap.NewNop().Sugar())
	obj := storage.Object{
		Bucket:      bucket,
		Key:         common.ObjectKey("", key),
		ContentType: common.ContentType(filePath),
		Data:        data,
	}

	fmt.Printf("Uploading %s (%d bytes) to %s/%s...\n", filePath, len(data), obj.Bucket, obj.Key)
	if err := client.Upload(context.Background(), obj); err != nil {
		log.Fatalf("Upload failed: %v", err)
	}

	url := client.PublicURL(obj.Bucket, obj.Key)
	fmt.Println("✅ Upload successful!")
	fmt.Printf("Public URL: %s\n", url)

	// The bucket must be public for this to succeed
	resp, err := http.Head(url)
	if err != nil {
		log.Fatalf("Failed to fetch public URL: %v", err)
	}
	resp.Body.Close()
	fmt.Printf("Public URL returned %s\n", resp.Status)
}
