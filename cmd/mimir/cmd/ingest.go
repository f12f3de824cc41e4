package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/internal/storage/app/importer"
	"github.com/mimir-go/internal/storage/source"
	"github.com/spf13/cobra"
)

// sourceFlags select where documents are read from.
type sourceFlags struct {
	input   string
	topic   string
	idField string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "JSON lines file (- for stdin)")
	cmd.Flags().StringVar(&f.topic, "kafka-topic", "", "Read documents from this Kafka topic instead of a file")
	cmd.Flags().StringVar(&f.idField, "id-field", "id", "Document field holding its identifier")
}

// documentSource is a finite document stream and its bookkeeping.
type documentSource struct {
	docs    iter.Seq[index.Document]
	read    func() int
	skipped func() int
	err     func() error
	commit  func(context.Context) error
	close   func() error
}

func (a *app) openSource(ctx context.Context, cmd *cobra.Command, f *sourceFlags, docType string) (*documentSource, error) {
	decoder := source.NewDecoder(docType, a.isGeo(docType))
	decoder.IDField = f.idField

	if f.topic != "" {
		kafkaCfg := a.cfg.Kafka
		kafkaCfg.Topic = f.topic
		topic := source.NewTopic(source.NewTopicReader(kafkaCfg), decoder, a.logger)
		return &documentSource{
			docs:    topic.Documents(ctx),
			read:    topic.Read,
			skipped: topic.Skipped,
			err:     topic.Err,
			commit:  topic.Commit,
			close:   topic.Close,
		}, nil
	}

	var r io.ReadCloser = io.NopCloser(cmd.InOrStdin())
	if f.input != "-" {
		file, err := os.Open(f.input)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		r = file
	}
	lines := source.NewLines(r, decoder, a.logger)
	return &documentSource{
		docs:    lines.Documents(),
		read:    lines.Read,
		skipped: lines.Skipped,
		err:     lines.Err,
		commit:  func(context.Context) error { return nil },
		close:   r.Close,
	}, nil
}

type insertReport struct {
	Index   string            `json:"index"`
	Stats   index.InsertStats `json:"stats"`
	Read    int               `json:"read"`
	Skipped int               `json:"skipped"`
}

func newInsertCmd(a *app) *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "insert <index>",
		Short: "Bulk load documents into an existing index",
		Long: `Bulk load JSON documents into an existing index. Records that do not
decode are skipped. The insertion counts are printed as JSON, also when some
chunks failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			docType, _, _ := index.SplitIndexName(a.cfg.Naming.Root, name)
			if err := a.ensurePipeline(ctx); err != nil {
				return err
			}

			docs, err := a.openSource(ctx, cmd, &src, docType)
			if err != nil {
				return err
			}
			defer docs.close()

			stats, insertErr := a.storage.InsertDocuments(ctx, name, docs.docs)
			if err := docs.err(); err != nil {
				return fmt.Errorf("document source failed: %w", err)
			}
			if insertErr == nil {
				if err := docs.commit(ctx); err != nil {
					return err
				}
			}

			var bulkErr *index.BulkError
			if insertErr != nil && !errors.As(insertErr, &bulkErr) {
				return insertErr
			}
			if err := printJSON(cmd, insertReport{Index: name, Stats: stats, Read: docs.read(), Skipped: docs.skipped()}); err != nil {
				return err
			}
			return insertErr
		},
	}

	src.register(cmd)
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	var visibility string

	cmd := &cobra.Command{
		Use:   "publish <index>",
		Short: "Swap an index in behind its dataset aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vis, err := index.ParseVisibility(visibility)
			if err != nil {
				return err
			}
			idx, err := a.storage.FindContainer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if idx == nil {
				return index.NewError(index.ErrUnknownIndex, index.WithIndex(args[0]))
			}
			if err := a.storage.PublishIndex(cmd.Context(), idx, vis); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s (%s)\n", idx.Name, vis)
			return nil
		},
	}

	cmd.Flags().StringVar(&visibility, "visibility", "public", "public or private")
	return cmd
}

type importReport struct {
	Index   *index.Index      `json:"index"`
	Stats   index.InsertStats `json:"stats"`
	Read    int               `json:"read"`
	Skipped int               `json:"skipped"`
}

func newImportCmd(a *app) *cobra.Command {
	var (
		src        sourceFlags
		template   string
		docType    string
		dataset    string
		visibility string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a dataset into a fresh index and publish it",
		Long: `Create a timestamped index from a configuration template, load the
documents into it and publish it in place of the previous generation of the
dataset. Kafka offsets are committed only once the index is published.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			vis, err := index.ParseVisibility(visibility)
			if err != nil {
				return err
			}
			text, err := readIndexConfig(template)
			if err != nil {
				return err
			}
			if err := a.ensurePipeline(ctx); err != nil {
				return err
			}

			docs, err := a.openSource(ctx, cmd, &src, docType)
			if err != nil {
				return err
			}
			defer docs.close()

			svc := importer.NewService(a.storage, a.cfg.Naming.Root, a.logger)
			if locker := a.locker(); locker != nil {
				svc.WithLocker(locker)
			}
			if publisher := a.publisher(); publisher != nil {
				svc.WithPublisher(publisher)
			}
			result, importErr := svc.Import(ctx, importer.Request{
				Template:   text,
				DocType:    docType,
				Dataset:    dataset,
				Visibility: vis,
				Documents:  docs.docs,
				Err:        docs.err,
			})
			if result == nil {
				return importErr
			}
			if err := docs.commit(ctx); err != nil {
				return err
			}
			if err := printJSON(cmd, importReport{
				Index:   result.Index,
				Stats:   result.Stats,
				Read:    docs.read(),
				Skipped: docs.skipped(),
			}); err != nil {
				return err
			}
			return importErr
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&template, "template", "t", "", "Index configuration template, JSON or YAML")
	cmd.Flags().StringVar(&docType, "doc-type", "", "Document type of the dataset (addr, street, admin, poi...)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&visibility, "visibility", "public", "public or private")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("doc-type")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
