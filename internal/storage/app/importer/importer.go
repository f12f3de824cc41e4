// Package importer drives one dataset import: create a fresh index, load
// the documents, then publish it in place of the previous generation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/ports"
	"github.com/mimir-go/pkg/events"
	"github.com/mimir-go/pkg/logger"
)

// Request describes one dataset import.
type Request struct {
	// Template is the index configuration. Its name is replaced by a
	// generated one.
	Template   string
	DocType    string
	Dataset    string
	Visibility index.Visibility
	Documents  iter.Seq[index.Document]
	// Err reports why Documents ended early. A failed source is never
	// published.
	Err func() error
}

// Result reports the published index and what was loaded into it.
type Result struct {
	Index *index.Index
	Stats index.InsertStats
}

// Locker serializes the imports of one dataset across processes. The
// returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, name string) (func(context.Context) error, error)
}

// EventIndexPublished is emitted once an import is in service.
const EventIndexPublished = "index.published"

// Published is the payload of EventIndexPublished.
type Published struct {
	Index      string            `json:"index"`
	DocType    string            `json:"docType"`
	Dataset    string            `json:"dataset"`
	Visibility index.Visibility  `json:"visibility"`
	DocsCount  uint64            `json:"docsCount"`
	Stats      index.InsertStats `json:"stats"`
}

type Service struct {
	storage   ports.Storage
	locker    Locker
	publisher events.Publisher
	logger    logger.Logger
	root      string
	now       func() time.Time
}

func NewService(storage ports.Storage, root string, log logger.Logger) *Service {
	if root == "" {
		root = index.DefaultRoot
	}
	return &Service{
		storage: storage,
		logger:  log.Named("importer"),
		root:    root,
		now:     time.Now,
	}
}

// WithLocker makes concurrent imports of the same dataset fail fast instead
// of racing on the alias swap.
func (s *Service) WithLocker(locker Locker) *Service {
	s.locker = locker
	return s
}

// WithPublisher announces every completed import.
func (s *Service) WithPublisher(publisher events.Publisher) *Service {
	s.publisher = publisher
	return s
}

// Import loads a dataset into a fresh index and publishes it. Partial
// insertion failures are tolerated: the index is published and the bulk
// error is returned alongside the result. When nothing could be loaded, the
// source failed or publication fails, the fresh index is deleted and the
// previous generation stays in service.
func (s *Service) Import(ctx context.Context, req Request) (*Result, error) {
	if req.DocType == "" || req.Dataset == "" {
		return nil, index.NewError(index.ErrInvalidConfiguration, index.WithReason("doc type and dataset are required"))
	}
	if req.Visibility == "" {
		req.Visibility = index.VisibilityPublic
	}

	if s.locker != nil {
		dataset := index.DatasetAlias(s.root, req.DocType, req.Dataset)
		unlock, err := s.locker.Lock(ctx, dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to lock dataset %s: %w", dataset, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to unlock dataset", "dataset", dataset, "error", err)
			}
		}()
	}

	cfg, err := index.ParseConfiguration(req.Template)
	if err != nil {
		return nil, err
	}
	name := index.IndexName(s.root, req.DocType, req.Dataset, s.now())

	log := s.logger.With("index", name, "doc_type", req.DocType, "dataset", req.Dataset)
	log.Info("Starting import")

	idx, err := s.storage.CreateContainer(ctx, cfg.WithName(name).String())
	if err != nil {
		return nil, err
	}

	stats, insertErr := s.storage.InsertDocuments(ctx, idx.Name, req.Documents)
	if insertErr != nil {
		var bulkErr *index.BulkError
		if !errors.As(insertErr, &bulkErr) || stats.Created+stats.Updated == 0 {
			s.discard(ctx, idx.Name)
			return nil, insertErr
		}
		log.Warn("Import is partial", "errors", stats.Error, "failed_chunks", len(bulkErr.Chunks))
	}

	if req.Err != nil {
		if err := req.Err(); err != nil {
			log.Error("Document source failed", "loaded", stats.Total(), "error", err)
			s.discard(ctx, idx.Name)
			return nil, fmt.Errorf("document source failed: %w", err)
		}
	}

	if err := s.storage.PublishIndex(ctx, idx, req.Visibility); err != nil {
		s.discard(ctx, idx.Name)
		return nil, err
	}

	if found, err := s.storage.FindContainer(ctx, idx.Name); err == nil && found != nil {
		idx = found
	}

	s.announce(ctx, idx, req, stats)

	log.Info("Import complete",
		"created", stats.Created,
		"updated", stats.Updated,
		"errors", stats.Error,
		"visibility", req.Visibility)
	return &Result{Index: idx, Stats: stats}, insertErr
}

// announce publishes EventIndexPublished. The index is already in service,
// so a failure is only logged.
func (s *Service) announce(ctx context.Context, idx *index.Index, req Request, stats index.InsertStats) {
	if s.publisher == nil {
		return
	}
	event, err := events.NewEvent(EventIndexPublished, index.DatasetAlias(s.root, req.DocType, req.Dataset), Published{
		Index:      idx.Name,
		DocType:    req.DocType,
		Dataset:    req.Dataset,
		Visibility: req.Visibility,
		DocsCount:  idx.DocsCount,
		Stats:      stats,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, event)
	}
	if err != nil {
		s.logger.Warn("Failed to announce publication", "index", idx.Name, "error", err)
	}
}

// discard removes an index that will never be published. It runs even when
// ctx is cancelled.
func (s *Service) discard(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.storage.DeleteContainer(ctx, name); err != nil {
		s.logger.Error("Failed to delete unpublished index", "index", name, "error", err)
		return
	}
	s.logger.Info("Deleted unpublished index", "index", name)
}
