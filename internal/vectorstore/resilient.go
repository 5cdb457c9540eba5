package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragindex/internal/logging"
)

// chromem names collection directories by an 8 hex digit hash prefix and
// keeps the collection metadata in 00000000.gob.
var collectionHashPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

const chromemMetadataFile = "00000000.gob"

const quarantineDir = ".quarantine"

// NewResilientChromemDB opens a persistent chromem DB. A collection whose
// metadata file is missing cannot be loaded by chromem and would fail the
// whole DB, so it is moved to .quarantine and the load is retried once.
func NewResilientChromemDB(path string, compress bool, logger *logging.Logger) (*chromem.DB, error) {
	ctx := context.Background()

	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	corrupt, findErr := findCorruptCollections(ctx, path, logger)
	if findErr != nil {
		logger.Error(ctx, "failed to scan chromem collections", zap.Error(findErr))
		return nil, err
	}
	if len(corrupt) == 0 {
		return nil, err
	}
	CorruptCollectionsDetected.Add(float64(len(corrupt)))

	moved, qErr := quarantineCollections(ctx, path, corrupt, logger)
	if qErr != nil {
		return nil, qErr
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("loading chromem DB after quarantine: %w", err)
	}
	logger.Warn(ctx, "chromem DB loaded after quarantine", zap.Int("quarantined", moved))
	return db, nil
}

// findCorruptCollections lists collection directories holding documents
// but no metadata file.
func findCorruptCollections(ctx context.Context, path string, logger *logging.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, chromemMetadataFile)); !os.IsNotExist(err) {
			continue
		}

		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn(ctx, "failed to read chromem collection",
				zap.String("collection_hash", entry.Name()), zap.Error(err))
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				corrupt = append(corrupt, entry.Name())
				break
			}
		}
	}
	return corrupt, nil
}

// quarantineCollections moves each valid collection hash under .quarantine
// and returns how many were moved.
func quarantineCollections(ctx context.Context, path string, hashes []string, logger *logging.Logger) (int, error) {
	target := filepath.Join(path, quarantineDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return 0, fmt.Errorf("creating quarantine directory: %w", err)
	}

	moved := 0
	for _, hash := range hashes {
		if !isValidCollectionHash(hash) {
			logger.Error(ctx, "invalid collection hash, skipping", zap.String("hash", hash))
			QuarantineOperations.WithLabelValues("invalid").Inc()
			continue
		}
		src, dst := filepath.Join(path, hash), filepath.Join(target, hash)
		if err := os.Rename(src, dst); err != nil {
			logger.Error(ctx, "failed to quarantine collection",
				zap.String("collection_hash", hash), zap.Error(err))
			QuarantineOperations.WithLabelValues("error").Inc()
			continue
		}
		QuarantineOperations.WithLabelValues("success").Inc()
		logger.Warn(ctx, "quarantined corrupt chromem collection",
			zap.String("collection_hash", hash), zap.String("to", dst))
		moved++
	}
	return moved, nil
}

func isValidCollectionHash(hash string) bool {
	return collectionHashPattern.MatchString(hash)
}
