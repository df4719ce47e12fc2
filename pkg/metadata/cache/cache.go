// Package cache provides the short-TTL lookup cache for hot metadata.
//
// The cache is strictly advisory: every miss falls through to the metadata
// store, and consumers must never rely on cache presence for correctness.
// Entries expire on their own TTL and are evicted eagerly on writes.
package cache

import (
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v2"

	"github.com/famgate/famgate/pkg/metadata"
)

// Key prefixes. Search and list entries embed the family id so a single
// metadata write can evict every dependent key of that family.
const (
	fileKeyPrefix   = "file:"
	searchKeyPrefix = "search:"
	listKeyPrefix   = "list:"
)

// Config holds per-keyspace TTLs.
type Config struct {
	FileTTL   time.Duration
	SearchTTL time.Duration
	ListTTL   time.Duration
}

// ApplyDefaults fills zero TTLs with short defaults.
func (c *Config) ApplyDefaults() {
	if c.FileTTL == 0 {
		c.FileTTL = 5 * time.Minute
	}
	if c.SearchTTL == 0 {
		c.SearchTTL = 30 * time.Second
	}
	if c.ListTTL == 0 {
		c.ListTTL = 30 * time.Second
	}
}

// MetadataCache caches file metadata, search results and folder listings.
//
// Thread safety: safe for concurrent use.
type MetadataCache struct {
	cache *ttlcache.Cache
	cfg   Config
}

// New creates a metadata cache with the given TTL configuration.
func New(cfg Config) *MetadataCache {
	cfg.ApplyDefaults()

	c := ttlcache.NewCache()
	c.SkipTTLExtensionOnHit(true)

	return &MetadataCache{cache: c, cfg: cfg}
}

func fileKey(fileID string) string {
	return fileKeyPrefix + fileID
}

func searchKey(familyID, keyword string) string {
	return searchKeyPrefix + familyID + ":" + strings.ToLower(keyword)
}

func listKey(familyID, folderPath string) string {
	return listKeyPrefix + familyID + ":" + folderPath
}

// GetFile returns the cached metadata for fileID, if present.
func (mc *MetadataCache) GetFile(fileID string) (*metadata.FileMetadata, bool) {
	v, err := mc.cache.Get(fileKey(fileID))
	if err != nil {
		return nil, false
	}
	m, ok := v.(*metadata.FileMetadata)
	return m, ok
}

// PutFile caches metadata under its file key.
func (mc *MetadataCache) PutFile(m *metadata.FileMetadata) {
	if m == nil {
		return
	}
	_ = mc.cache.SetWithTTL(fileKey(m.FileID), m, mc.cfg.FileTTL)
}

// GetSearch returns a cached search result set, if present.
func (mc *MetadataCache) GetSearch(familyID, keyword string) ([]*metadata.FileMetadata, bool) {
	v, err := mc.cache.Get(searchKey(familyID, keyword))
	if err != nil {
		return nil, false
	}
	files, ok := v.([]*metadata.FileMetadata)
	return files, ok
}

// PutSearch caches a search result set.
func (mc *MetadataCache) PutSearch(familyID, keyword string, files []*metadata.FileMetadata) {
	_ = mc.cache.SetWithTTL(searchKey(familyID, keyword), files, mc.cfg.SearchTTL)
}

// GetList returns a cached folder listing, if present.
func (mc *MetadataCache) GetList(familyID, folderPath string) ([]*metadata.FileMetadata, bool) {
	v, err := mc.cache.Get(listKey(familyID, folderPath))
	if err != nil {
		return nil, false
	}
	files, ok := v.([]*metadata.FileMetadata)
	return files, ok
}

// PutList caches a folder listing.
func (mc *MetadataCache) PutList(familyID, folderPath string, files []*metadata.FileMetadata) {
	_ = mc.cache.SetWithTTL(listKey(familyID, folderPath), files, mc.cfg.ListTTL)
}

// EvictFile removes the file key for fileID and every search and list entry
// of familyID. Called after every successful metadata write.
func (mc *MetadataCache) EvictFile(fileID, familyID string) {
	_ = mc.cache.Remove(fileKey(fileID))
	mc.EvictFamily(familyID)
}

// EvictFamily removes all search and list entries of a family.
func (mc *MetadataCache) EvictFamily(familyID string) {
	searchPrefix := searchKeyPrefix + familyID + ":"
	listPrefix := listKeyPrefix + familyID + ":"

	for _, key := range mc.cache.GetKeys() {
		if strings.HasPrefix(key, searchPrefix) || strings.HasPrefix(key, listPrefix) {
			_ = mc.cache.Remove(key)
		}
	}
}

// Purge drops every entry. Used by tests and on reconciliation.
func (mc *MetadataCache) Purge() {
	_ = mc.cache.Purge()
}

// Close releases the cache's background resources.
func (mc *MetadataCache) Close() {
	_ = mc.cache.Close()
}
