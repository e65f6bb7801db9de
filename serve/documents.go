package main

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Paranoid-AF/ghostline/generate"
)

// documentTTL is how long an untouched document stays in the store.
const documentTTL = 30 * time.Minute

// storedDocument is the latest text the editor sent for one document.
type storedDocument struct {
	languageID string
	lines      []string
}

// DocumentStore holds the most recent text of each open document, keyed by
// session and URI, so a debounced request reads the text current when it fires.
type DocumentStore struct {
	cache *ttlcache.Cache[string, storedDocument]
}

// NewDocumentStore creates a store whose entries expire after ttl without updates.
func NewDocumentStore(ttl time.Duration) *DocumentStore {
	c := ttlcache.New[string, storedDocument](
		ttlcache.WithTTL[string, storedDocument](ttl),
	)
	go c.Start()
	return &DocumentStore{cache: c}
}

func documentKey(sessionID, uri string) string {
	return sessionID + "\x00" + uri
}

// Update replaces the text of a document.
func (d *DocumentStore) Update(sessionID, uri, languageID, text string) {
	d.cache.Set(documentKey(sessionID, uri), storedDocument{
		languageID: languageID,
		lines:      generate.SplitLines(text),
	}, ttlcache.DefaultTTL)
}

// Remove forgets a document.
func (d *DocumentStore) Remove(sessionID, uri string) {
	d.cache.Delete(documentKey(sessionID, uri))
}

// Live returns a Document that reads the store on every access and falls
// back to snapshot once the entry is gone.
func (d *DocumentStore) Live(sessionID, uri string, snapshot []string) generate.Document {
	return &liveDocument{store: d, key: documentKey(sessionID, uri), snapshot: snapshot}
}

// Len returns the number of stored documents.
func (d *DocumentStore) Len() int {
	return d.cache.Len()
}

// Close stops the expiry loop.
func (d *DocumentStore) Close() {
	d.cache.Stop()
}

type liveDocument struct {
	store    *DocumentStore
	key      string
	snapshot []string
}

func (l *liveDocument) Lines() []string {
	if item := l.store.cache.Get(l.key); item != nil {
		return item.Value().lines
	}
	return l.snapshot
}
