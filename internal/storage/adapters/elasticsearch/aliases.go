package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mimir-go/internal/domain/index"
	"github.com/mimir-go/pkg/resilience"
)

type aliasesByIndex map[string]struct {
	Aliases map[string]json.RawMessage `json:"aliases"`
}

// aliasAction is one entry of an atomic alias update.
type aliasAction struct {
	Add    *aliasTarget `json:"add,omitempty"`
	Remove *aliasTarget `json:"remove,omitempty"`
}

type aliasTarget struct {
	Index   string   `json:"index,omitempty"`
	Indices []string `json:"indices,omitempty"`
	Alias   string   `json:"alias"`
}

// AliasIndices returns the sorted names of the indices served by alias.
func (s *Storage) AliasIndices(ctx context.Context, alias string) ([]string, error) {
	return s.findAliasIndices(ctx, alias)
}

// findAliasIndices returns the sorted names of the indices bound to alias.
// An alias bound to nothing yields an empty list.
func (s *Storage) findAliasIndices(ctx context.Context, alias string) ([]string, error) {
	byIndex, err := resilience.RetryWithResult(ctx, s.retryConfig("find_aliases"), func() (aliasesByIndex, error) {
		return s.getAliases(ctx, esapi.IndicesGetAliasRequest{Name: []string{alias}})
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(byIndex))
	for name := range byIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// indexAliases returns every alias carried by each of the given indices.
func (s *Storage) indexAliases(ctx context.Context, indices []string) (map[string]map[string]bool, error) {
	byIndex, err := resilience.RetryWithResult(ctx, s.retryConfig("find_aliases"), func() (aliasesByIndex, error) {
		return s.getAliases(ctx, esapi.IndicesGetAliasRequest{Index: indices})
	})
	if err != nil {
		return nil, err
	}

	result := make(map[string]map[string]bool, len(byIndex))
	for name, entry := range byIndex {
		set := make(map[string]bool, len(entry.Aliases))
		for alias := range entry.Aliases {
			set[alias] = true
		}
		result[name] = set
	}
	return result, nil
}

func (s *Storage) getAliases(ctx context.Context, req esapi.IndicesGetAliasRequest) (aliasesByIndex, error) {
	res, err := s.do(ctx, "find_aliases", req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	// An unbound alias answers 404 with a bare error string.
	if res.StatusCode == http.StatusNotFound && len(req.Index) == 0 {
		return aliasesByIndex{}, nil
	}
	if res.IsError() {
		return nil, responseError(res, "find_aliases")
	}

	var byIndex aliasesByIndex
	if err := decode(res, "find_aliases", &byIndex); err != nil {
		return nil, err
	}
	return byIndex, nil
}

// updateAliases applies every action in a single atomic request.
func (s *Storage) updateAliases(ctx context.Context, actions []aliasAction) error {
	body, err := json.Marshal(map[string]interface{}{"actions": actions})
	if err != nil {
		return index.NewError(index.ErrInternal, index.WithOperation("update_aliases"), index.WithCause(err))
	}

	res, err := s.do(ctx, "update_aliases", esapi.IndicesUpdateAliasesRequest{Body: bytes.NewReader(body)})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "update_aliases")
	}

	ok, err := acknowledged(res, "update_aliases")
	if err != nil {
		return err
	}
	if !ok {
		return index.NewError(index.ErrNotAcknowledged, index.WithOperation("update_aliases"))
	}
	return nil
}
