// Package estest provides an in-memory Elasticsearch stand-in serving the
// subset of the REST API used by the storage adapter.
package estest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// Reply is a canned response returned by an Intercept hook.
type Reply struct {
	Status int
	Body   string
}

// Server is a fake cluster holding indices, aliases, points in time and
// ingest pipelines in memory.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	indices   map[string]*fakeIndex
	pits      map[string]*pointInTime
	pipelines map[string]json.RawMessage
	requests  []string
	seq       int64

	inFlight    int
	maxInFlight int

	// Intercept, when set, may answer a request instead of the fake cluster.
	Intercept func(method, path string, body []byte) *Reply
	// RejectDocument, when set, fails the bulk item of a document with the
	// returned reason, unless it is empty.
	RejectDocument func(index, id string, source json.RawMessage) string
	// BulkDelay holds every bulk request for the given duration.
	BulkDelay time.Duration
	// PrimaryGroup is the number of consecutive documents sharing the same
	// primary sort value, so that scans exercise the tie breaker.
	PrimaryGroup int64
}

type fakeIndex struct {
	health  string
	aliases map[string]bool
	docs    map[string]*storedDoc
}

type storedDoc struct {
	id     string
	seq    int64
	source json.RawMessage
}

type pointInTime struct {
	index string
	docs  []*storedDoc
}

// NewServer starts a fake cluster. It is closed with the test.
func NewServer() *Server {
	s := &Server{
		indices:      make(map[string]*fakeIndex),
		pits:         make(map[string]*pointInTime),
		pipelines:    make(map[string]json.RawMessage),
		PrimaryGroup: 3,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Client returns a wire client pointed at the fake cluster.
func (s *Server) Client() *elasticsearch.Client {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{s.URL},
		RetryOnStatus: []int{},
		DisableRetry:  true,
	})
	if err != nil {
		panic(err)
	}
	return client
}

// AddIndex creates an index directly, bypassing the API.
func (s *Server) AddIndex(name string, aliases ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := &fakeIndex{health: "green", aliases: map[string]bool{}, docs: map[string]*storedDoc{}}
	for _, alias := range aliases {
		idx.aliases[alias] = true
	}
	s.indices[name] = idx
}

// SetHealth changes the health reported for an index.
func (s *Server) SetHealth(name, health string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indices[name]; ok {
		idx.health = health
	}
}

// HasIndex reports whether the index exists.
func (s *Server) HasIndex(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indices[name]
	return ok
}

// Aliases returns the sorted aliases of an index.
func (s *Server) Aliases(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var aliases []string
	if idx, ok := s.indices[name]; ok {
		for alias := range idx.aliases {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// AliasIndices returns the sorted indices bound to an alias.
func (s *Server) AliasIndices(alias string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliasIndices(alias)
}

// Document returns the stored source of a document.
func (s *Server) Document(name, id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indices[name]
	if !ok {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	return doc.source, true
}

// DocCount returns the number of documents stored in an index.
func (s *Server) DocCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indices[name]; ok {
		return len(idx.docs)
	}
	return 0
}

// OpenPointsInTime returns the number of points in time not yet closed.
func (s *Server) OpenPointsInTime() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pits)
}

// Pipeline returns an installed ingest pipeline.
func (s *Server) Pipeline(id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	return p, ok
}

// MaxConcurrentBulk returns the highest number of bulk requests seen in
// flight at once.
func (s *Server) MaxConcurrentBulk() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Requests returns every request received, as "METHOD /path".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests returns how many requests matched "METHOD /path".
func (s *Server) CountRequests(request string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == request {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.mu.Unlock()

	if s.Intercept != nil {
		if reply := s.Intercept(r.Method, r.URL.Path, body); reply != nil {
			w.WriteHeader(reply.Status)
			_, _ = io.WriteString(w, reply.Body)
			return
		}
	}

	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		segments = nil
	}

	status, payload := s.route(r, segments, body)
	w.WriteHeader(status)
	if r.Method != http.MethodHead && payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) route(r *http.Request, seg []string, body []byte) (int, interface{}) {
	method := r.Method
	switch {
	case len(seg) == 0 && (method == http.MethodGet || method == http.MethodHead):
		return http.StatusOK, map[string]interface{}{
			"cluster_name": "estest",
			"version":      map[string]string{"number": "8.19.0"},
			"tagline":      "You Know, for Search",
		}
	case len(seg) == 3 && seg[0] == "_cat" && seg[1] == "indices" && method == http.MethodGet:
		return s.catIndices(seg[2])
	case len(seg) == 2 && seg[0] == "_alias" && method == http.MethodGet:
		return s.getAliasByName(seg[1])
	case len(seg) == 2 && seg[1] == "_alias" && method == http.MethodGet:
		return s.getAliasByIndex(strings.Split(seg[0], ","))
	case len(seg) == 1 && seg[0] == "_aliases" && method == http.MethodPost:
		return s.updateAliases(body)
	case len(seg) == 1 && seg[0] == "_pit" && method == http.MethodDelete:
		return s.closePIT(body)
	case len(seg) == 1 && seg[0] == "_search" && method == http.MethodPost:
		return s.searchPIT(body)
	case len(seg) == 3 && seg[0] == "_ingest" && seg[1] == "pipeline" && method == http.MethodPut:
		return s.putPipeline(seg[2], body)
	case len(seg) == 2 && seg[1] == "_bulk" && (method == http.MethodPost || method == http.MethodPut):
		return s.bulk(seg[0], r.URL.Query().Get("pipeline"), body)
	case len(seg) == 2 && seg[1] == "_refresh" && method == http.MethodPost:
		return s.refresh(seg[0])
	case len(seg) == 2 && seg[1] == "_pit" && method == http.MethodPost:
		return s.openPIT(seg[0])
	case len(seg) == 2 && seg[1] == "_search" && (method == http.MethodPost || method == http.MethodGet):
		return s.search(strings.Split(seg[0], ","), body)
	case len(seg) == 1 && method == http.MethodPut:
		return s.createIndex(seg[0], body)
	case len(seg) == 1 && method == http.MethodDelete:
		return s.deleteIndex(seg[0])
	}
	return http.StatusBadRequest, exception(http.StatusBadRequest, "illegal_argument_exception",
		fmt.Sprintf("unsupported request [%s /%s]", method, strings.Join(seg, "/")))
}

func exception(status int, kind, reason string) map[string]interface{} {
	cause := map[string]string{"type": kind, "reason": reason}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"root_cause": []interface{}{cause},
			"type":       kind,
			"reason":     reason,
		},
		"status": status,
	}
}

func notFound(name string) (int, interface{}) {
	return http.StatusNotFound, exception(http.StatusNotFound, "index_not_found_exception",
		fmt.Sprintf("no such index [%s]", name))
}

var (
	validIndexName = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-.]*$`)
	knownSettings  = map[string]bool{
		"number_of_shards":   true,
		"number_of_replicas": true,
		"refresh_interval":   true,
		"max_result_window":  true,
		"analysis":           true,
	}
)

func (s *Server) createIndex(name string, body []byte) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validIndexName.MatchString(name) {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "invalid_index_name_exception",
			fmt.Sprintf("Invalid index name [%s], must be lowercase", name))
	}
	if _, ok := s.indices[name]; ok {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "resource_already_exists_exception",
			fmt.Sprintf("index [%s/%s] already exists", name, uuid.NewString()[:22]))
	}

	var req struct {
		Settings map[string]json.RawMessage `json:"settings"`
		Mappings map[string]json.RawMessage `json:"mappings"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, exception(http.StatusBadRequest, "parse_exception",
				"request body failed to parse: "+err.Error())
		}
	}

	settings := req.Settings
	if nested, ok := settings["index"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			settings = inner
		}
	}
	for key := range settings {
		if !knownSettings[strings.SplitN(strings.TrimPrefix(key, "index."), ".", 2)[0]] {
			return http.StatusBadRequest, exception(http.StatusBadRequest, "illegal_argument_exception",
				fmt.Sprintf("unknown setting [index.%s] please check that any required plugins are installed",
					strings.TrimPrefix(key, "index.")))
		}
	}

	if props, ok := req.Mappings["properties"]; ok {
		var fields map[string]map[string]interface{}
		if err := json.Unmarshal(props, &fields); err != nil {
			return http.StatusBadRequest, exception(http.StatusBadRequest, "mapper_parsing_exception",
				"Failed to parse mapping [_doc]: properties must be an object")
		}
		for field, def := range fields {
			if kind, ok := def["type"].(string); ok && !knownFieldType(kind) {
				return http.StatusBadRequest, exception(http.StatusBadRequest, "mapper_parsing_exception",
					fmt.Sprintf("Failed to parse mapping [_doc]: No handler for type [%s] declared on field [%s]", kind, field))
			}
		}
	}

	s.indices[name] = &fakeIndex{health: "green", aliases: map[string]bool{}, docs: map[string]*storedDoc{}}
	return http.StatusOK, map[string]interface{}{
		"acknowledged":        true,
		"shards_acknowledged": true,
		"index":               name,
	}
}

func knownFieldType(kind string) bool {
	switch kind {
	case "text", "keyword", "long", "integer", "double", "float", "boolean",
		"date", "geo_point", "geo_shape", "object", "nested", "search_as_you_type":
		return true
	}
	return false
}

func (s *Server) deleteIndex(name string) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indices[name]; !ok {
		return notFound(name)
	}
	delete(s.indices, name)
	return http.StatusOK, map[string]bool{"acknowledged": true}
}

func (s *Server) catIndices(name string) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		return notFound(name)
	}
	return http.StatusOK, []map[string]interface{}{{
		"health":     idx.health,
		"status":     "open",
		"index":      name,
		"uuid":       uuid.NewString(),
		"pri":        "1",
		"rep":        "1",
		"docs.count": strconv.Itoa(len(idx.docs)),
	}}
}

func (s *Server) aliasIndices(alias string) []string {
	var names []string
	for name, idx := range s.indices {
		if idx.aliases[alias] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Server) getAliasByName(alias string) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := s.aliasIndices(alias)
	if len(names) == 0 {
		return http.StatusNotFound, map[string]interface{}{
			"error":  fmt.Sprintf("alias [%s] missing", alias),
			"status": http.StatusNotFound,
		}
	}
	result := map[string]interface{}{}
	for _, name := range names {
		result[name] = map[string]interface{}{"aliases": map[string]interface{}{alias: map[string]interface{}{}}}
	}
	return http.StatusOK, result
}

func (s *Server) getAliasByIndex(names []string) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := map[string]interface{}{}
	for _, name := range names {
		idx, ok := s.indices[name]
		if !ok {
			return notFound(name)
		}
		aliases := map[string]interface{}{}
		for alias := range idx.aliases {
			aliases[alias] = map[string]interface{}{}
		}
		result[name] = map[string]interface{}{"aliases": aliases}
	}
	return http.StatusOK, result
}

type aliasTarget struct {
	Index   string   `json:"index"`
	Indices []string `json:"indices"`
	Alias   string   `json:"alias"`
}

func (t aliasTarget) targets() []string {
	if t.Index != "" {
		return append([]string{t.Index}, t.Indices...)
	}
	return t.Indices
}

// updateAliases validates every action before applying any of them.
func (s *Server) updateAliases(body []byte) (int, interface{}) {
	var req struct {
		Actions []map[string]aliasTarget `json:"actions"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "parse_exception", "failed to parse actions")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, action := range req.Actions {
		for kind, target := range action {
			for _, name := range target.targets() {
				idx, ok := s.indices[name]
				if !ok {
					return notFound(name)
				}
				if kind == "remove" && !idx.aliases[target.Alias] {
					return http.StatusNotFound, exception(http.StatusNotFound, "aliases_not_found_exception",
						fmt.Sprintf("aliases [%s] missing", target.Alias))
				}
				if kind != "add" && kind != "remove" {
					return http.StatusBadRequest, exception(http.StatusBadRequest, "illegal_argument_exception",
						"unsupported alias action ["+kind+"]")
				}
			}
		}
	}

	for _, action := range req.Actions {
		for kind, target := range action {
			for _, name := range target.targets() {
				if kind == "add" {
					s.indices[name].aliases[target.Alias] = true
				} else {
					delete(s.indices[name].aliases, target.Alias)
				}
			}
		}
	}
	return http.StatusOK, map[string]bool{"acknowledged": true}
}

func (s *Server) refresh(name string) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indices[name]; !ok {
		return notFound(name)
	}
	return http.StatusOK, map[string]interface{}{
		"_shards": map[string]int{"total": 1, "successful": 1, "failed": 0},
	}
}

func (s *Server) putPipeline(id string, body []byte) (int, interface{}) {
	if !json.Valid(body) {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "parse_exception", "failed to parse pipeline")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[id] = json.RawMessage(body)
	return http.StatusOK, map[string]bool{"acknowledged": true}
}

func (s *Server) bulk(name, pipeline string, body []byte) (int, interface{}) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.BulkDelay > 0 {
		time.Sleep(s.BulkDelay)
	}

	type action struct {
		Index struct {
			ID string `json:"_id"`
		} `json:"index"`
	}

	var items []interface{}
	hasErrors := false
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var act action
		if err := json.Unmarshal(line, &act); err != nil {
			return http.StatusBadRequest, exception(http.StatusBadRequest, "illegal_argument_exception",
				"Malformed action/metadata line")
		}
		if !scanner.Scan() {
			return http.StatusBadRequest, exception(http.StatusBadRequest, "illegal_argument_exception",
				"The bulk request must be terminated by a newline [\\n]")
		}
		source := append(json.RawMessage(nil), bytes.TrimSpace(scanner.Bytes())...)

		item, failed := s.indexDocument(name, pipeline, act.Index.ID, source)
		hasErrors = hasErrors || failed
		items = append(items, map[string]interface{}{"index": item})
	}

	return http.StatusOK, map[string]interface{}{
		"took":   1,
		"errors": hasErrors,
		"items":  items,
	}
}

func (s *Server) indexDocument(name, pipeline, id string, source json.RawMessage) (map[string]interface{}, bool) {
	if id == "" {
		id = uuid.NewString()
	}
	item := map[string]interface{}{"_index": name, "_id": id}
	fail := func(status int, kind, reason string) (map[string]interface{}, bool) {
		item["status"] = status
		item["error"] = map[string]string{"type": kind, "reason": reason}
		return item, true
	}

	if s.RejectDocument != nil {
		if reason := s.RejectDocument(name, id, source); reason != "" {
			return fail(http.StatusBadRequest, "mapper_parsing_exception", reason)
		}
	}
	if !json.Valid(source) {
		return fail(http.StatusBadRequest, "mapper_parsing_exception", "failed to parse document")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		return fail(http.StatusNotFound, "index_not_found_exception", fmt.Sprintf("no such index [%s]", name))
	}
	if pipeline != "" {
		if _, ok := s.pipelines[pipeline]; !ok {
			return fail(http.StatusBadRequest, "illegal_argument_exception",
				fmt.Sprintf("pipeline with id [%s] does not exist", pipeline))
		}
	}

	s.seq++
	if existing, ok := idx.docs[id]; ok {
		existing.source = source
		existing.seq = s.seq
		item["status"] = http.StatusOK
		item["result"] = "updated"
		return item, false
	}
	idx.docs[id] = &storedDoc{id: id, seq: s.seq, source: source}
	item["status"] = http.StatusCreated
	item["result"] = "created"
	return item, false
}

func (s *Server) openPIT(name string) (int, interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indices[name]
	if !ok {
		return notFound(name)
	}
	docs := make([]*storedDoc, 0, len(idx.docs))
	for _, doc := range idx.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	id := "pit-" + uuid.NewString()
	s.pits[id] = &pointInTime{index: name, docs: docs}
	return http.StatusOK, map[string]string{"id": id}
}

func (s *Server) closePIT(body []byte) (int, interface{}) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "parse_exception", "failed to parse point in time")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pits[req.ID]; !ok {
		return http.StatusNotFound, map[string]interface{}{"succeeded": true, "num_freed": 0}
	}
	delete(s.pits, req.ID)
	return http.StatusOK, map[string]interface{}{"succeeded": true, "num_freed": 1}
}

// sortKey is the (indexed_at, _shard_doc) pair of a document.
func (s *Server) sortKey(doc *storedDoc) [2]int64 {
	group := s.PrimaryGroup
	if group < 1 {
		group = 1
	}
	return [2]int64{1700000000000 + (doc.seq-1)/group, doc.seq}
}

func (s *Server) searchPIT(body []byte) (int, interface{}) {
	var req struct {
		Size int `json:"size"`
		PIT  struct {
			ID string `json:"id"`
		} `json:"pit"`
		SearchAfter []int64 `json:"search_after"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "parse_exception", "failed to parse search source")
	}
	if req.PIT.ID == "" {
		return http.StatusBadRequest, exception(http.StatusBadRequest, "action_request_validation_exception",
			"Validation Failed: 1: index is missing;")
	}
	if req.Size <= 0 {
		req.Size = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pit, ok := s.pits[req.PIT.ID]
	if !ok {
		return http.StatusNotFound, exception(http.StatusNotFound, "search_context_missing_exception",
			fmt.Sprintf("No search context found for id [%s]", req.PIT.ID))
	}

	var hits []interface{}
	for _, doc := range pit.docs {
		key := s.sortKey(doc)
		if len(req.SearchAfter) == 2 && !after(key, [2]int64{req.SearchAfter[0], req.SearchAfter[1]}) {
			continue
		}
		if len(hits) == req.Size {
			break
		}
		hits = append(hits, map[string]interface{}{
			"_index":  pit.index,
			"_id":     doc.id,
			"_source": doc.source,
			"sort":    []int64{key[0], key[1]},
		})
	}

	return http.StatusOK, map[string]interface{}{
		"pit_id": req.PIT.ID,
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": len(pit.docs), "relation": "eq"},
			"hits":  nonNil(hits),
		},
	}
}

func after(key, cursor [2]int64) bool {
	if key[0] != cursor[0] {
		return key[0] > cursor[0]
	}
	return key[1] > cursor[1]
}

// search answers match_all style queries over indices or aliases.
func (s *Server) search(targets []string, body []byte) (int, interface{}) {
	var req struct {
		Size *int `json:"size"`
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, exception(http.StatusBadRequest, "parse_exception", "failed to parse search source")
		}
	}
	size := 10
	if req.Size != nil {
		size = *req.Size
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var names []string
	for _, target := range targets {
		if _, ok := s.indices[target]; ok {
			if !seen[target] {
				seen[target] = true
				names = append(names, target)
			}
			continue
		}
		bound := s.aliasIndices(target)
		if len(bound) == 0 {
			return notFound(target)
		}
		for _, name := range bound {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	var docs []*storedDoc
	owner := map[*storedDoc]string{}
	for _, name := range names {
		for _, doc := range s.indices[name].docs {
			docs = append(docs, doc)
			owner[doc] = name
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })

	var hits []interface{}
	for _, doc := range docs {
		if len(hits) == size {
			break
		}
		hits = append(hits, map[string]interface{}{
			"_index":  owner[doc],
			"_id":     doc.id,
			"_source": doc.source,
		})
	}
	return http.StatusOK, map[string]interface{}{
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": len(docs), "relation": "eq"},
			"hits":  nonNil(hits),
		},
	}
}

func nonNil(hits []interface{}) []interface{} {
	if hits == nil {
		return []interface{}{}
	}
	return hits
}
