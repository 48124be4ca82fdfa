package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeArchive is an in-memory Paperless-style document API.
type fakeArchive struct {
	mu      sync.Mutex
	tags    map[int64]string
	docs    map[int64]*documentPayload
	nextTag int64
	patches int
	auth    string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		tags:    make(map[int64]string),
		docs:    make(map[int64]*documentPayload),
		nextTag: 1,
	}
}

func (f *fakeArchive) addTag(name string) int64 {
	id := f.nextTag
	f.nextTag++
	f.tags[id] = name
	return id
}

func (f *fakeArchive) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = r.Header.Get("Authorization")
		switch r.Method {
		case http.MethodGet:
			nameFilter := r.URL.Query().Get("name")
			var results []tagPayload
			for id, name := range f.tags {
				if nameFilter == "" || strings.EqualFold(name, nameFilter) {
					results = append(results, tagPayload{ID: id, Name: name})
				}
			}
			json.NewEncoder(w).Encode(listEnvelope[tagPayload]{Results: results})
		case http.MethodPost:
			var in tagPayload
			json.NewDecoder(r.Body).Decode(&in)
			id := f.addTag(in.Name)
			json.NewEncoder(w).Encode(tagPayload{ID: id, Name: in.Name})
		}
	})
	mux.HandleFunc("/api/documents/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/documents/"), "/")
		if rest == "" {
			var results []documentPayload
			filter := r.URL.Query().Get("tags__id__in")
			wanted := make(map[string]bool)
			for _, id := range strings.Split(filter, ",") {
				wanted[id] = true
			}
			for _, doc := range f.docs {
				for _, tagID := range doc.Tags {
					if wanted[strconv.FormatInt(tagID, 10)] {
						results = append(results, *doc)
						break
					}
				}
			}
			json.NewEncoder(w).Encode(listEnvelope[documentPayload]{Results: results})
			return
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		doc, ok := f.docs[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(doc)
		case http.MethodPatch:
			f.patches++
			var update struct {
				Tags []int64 `json:"tags"`
			}
			json.NewDecoder(r.Body).Decode(&update)
			doc.Tags = update.Tags
			json.NewEncoder(w).Encode(doc)
		}
	})
	return mux
}


func TestClientListDocuments(t *testing.T) {
	archive := newFakeArchive()
	invoiceTag := archive.addTag("invoice")
	receiptTag := archive.addTag("receipt")
	archive.docs[1] = &documentPayload{ID: 1, Title: "March invoice", Tags: []int64{invoiceTag}}
	archive.docs[2] = &documentPayload{ID: 2, Title: "Shop receipt", Tags: []int64{receiptTag}}

	srv := httptest.NewServer(archive.handler())
	defer srv.Close()
	client := NewClient(srv.URL, "secret")

	docs, err := client.ListDocuments(context.Background(), []string{"invoice"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, int64(1), docs[0].ID)
	require.Equal(t, "March invoice", docs[0].Title)
	require.Equal(t, []string{"invoice"}, docs[0].Tags)
	require.Equal(t, "Token secret", archive.auth)
}

func TestClientListDocumentsUnknownTag(t *testing.T) {
	archive := newFakeArchive()
	srv := httptest.NewServer(archive.handler())
	defer srv.Close()
	client := NewClient(srv.URL, "secret")

	docs, err := client.ListDocuments(context.Background(), []string{"no-such-tag"})
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestClientReadText(t *testing.T) {
	archive := newFakeArchive()
	archive.docs[7] = &documentPayload{ID: 7, Content: "Invoice #INV-1\nTotal: $10.00"}

	srv := httptest.NewServer(archive.handler())
	defer srv.Close()
	client := NewClient(srv.URL, "secret")

	text, err := client.ReadText(context.Background(), 7)
	require.NoError(t, err)
	require.Contains(t, text, "INV-1")
}

func TestClientAddTagCreatesMissingTag(t *testing.T) {
	archive := newFakeArchive()
	archive.docs[3] = &documentPayload{ID: 3}

	srv := httptest.NewServer(archive.handler())
	defer srv.Close()
	client := NewClient(srv.URL, "secret")

	require.NoError(t, client.AddTag(context.Background(), 3, "ledger-processed"))
	require.Len(t, archive.docs[3].Tags, 1)
	require.Equal(t, 1, archive.patches)

	var names []string
	for _, name := range archive.tags {
		names = append(names, name)
	}
	require.Contains(t, names, "ledger-processed")
}

func TestClientAddTagIsIdempotent(t *testing.T) {
	archive := newFakeArchive()
	processed := archive.addTag("ledger-processed")
	archive.docs[3] = &documentPayload{ID: 3, Tags: []int64{processed}}

	srv := httptest.NewServer(archive.handler())
	defer srv.Close()
	client := NewClient(srv.URL, "secret")

	require.NoError(t, client.AddTag(context.Background(), 3, "ledger-processed"))
	require.Equal(t, 0, archive.patches)
	require.Equal(t, []int64{processed}, archive.docs[3].Tags)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	client := NewClient(srv.URL, "secret")

	_, err := client.ReadText(context.Background(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
