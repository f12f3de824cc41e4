package elasticsearch

import (
	"context"
	"slices"

	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/metrics"
	"github.com/mimir-go/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PublishIndex makes idx the index served by its dataset alias. Public
// indices are also served by the doc type alias, the root alias and, for
// geo doc types, the geo data alias. Every alias moves from the previous
// generation of the dataset to idx in a single atomic update.
func (s *Storage) PublishIndex(ctx context.Context, idx *index.Index, visibility index.Visibility) (err error) {
	if idx == nil || !idx.Publishable() {
		name := ""
		if idx != nil {
			name = idx.Name
		}
		return index.NewError(index.ErrInvalidConfiguration,
			index.WithIndex(name),
			index.WithReason("index name carries no doc type or dataset"))
	}

	ctx, span := s.tracer.Start(ctx, "storage.PublishIndex", trace.WithAttributes(
		telemetry.IndexAttr(idx.Name),
		attribute.String("mimir.visibility", string(visibility)),
	))
	defer func() {
		metrics.PublicationsTotal.WithLabelValues(idx.DocType, string(visibility), metrics.OutcomeOf(err)).Inc()
		telemetry.EndSpan(span, err)
	}()

	if err := s.refreshIndex(ctx, idx.Name); err != nil {
		return err
	}

	datasetAlias := index.DatasetAlias(s.opts.Root, idx.DocType, idx.Dataset)
	bound, err := s.findAliasIndices(ctx, datasetAlias)
	if err != nil {
		return err
	}
	previous := slices.DeleteFunc(bound, func(name string) bool { return name == idx.Name })

	held := map[string]map[string]bool{}
	if len(previous) > 0 {
		if held, err = s.indexAliases(ctx, previous); err != nil {
			return err
		}
	}

	actions := make([]aliasAction, 0, 8)
	for _, alias := range s.publicationAliases(idx, visibility) {
		var holders []string
		for _, name := range previous {
			if held[name][alias] {
				holders = append(holders, name)
			}
		}
		if len(holders) > 0 {
			actions = append(actions, aliasAction{Remove: &aliasTarget{Indices: holders, Alias: alias}})
		}
		actions = append(actions, aliasAction{Add: &aliasTarget{Index: idx.Name, Alias: alias}})
	}

	if err := s.updateAliases(ctx, actions); err != nil {
		return err
	}

	s.logger.Info("Index published",
		"index", idx.Name,
		"alias", datasetAlias,
		"visibility", visibility,
		"previous", previous)
	return nil
}

// publicationAliases lists the aliases idx must be served by.
func (s *Storage) publicationAliases(idx *index.Index, visibility index.Visibility) []string {
	aliases := []string{index.DatasetAlias(s.opts.Root, idx.DocType, idx.Dataset)}
	if visibility != index.VisibilityPublic {
		return aliases
	}
	aliases = append(aliases,
		index.DocTypeAlias(s.opts.Root, idx.DocType),
		s.opts.Root,
	)
	if s.geo[idx.DocType] {
		aliases = append(aliases, index.GeoDataAlias(s.opts.Root))
	}
	return aliases
}
