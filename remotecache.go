// remotecache.go - Shared object cache over HTTP
//
// Teams point INDENTC_REMOTE_CACHE at a cache server and builds read
// through it: local miss, remote fetch, local store. Uploads are
// best-effort and never fail a build; the first transport error
// degrades the client to local-only for the rest of the process.
//
// Protocol: GET/HEAD/PUT /o/<fingerprint>, GET /stats, GET /health.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const remoteCacheTimeout = 30 * time.Second

type RemoteCache struct {
	base     string
	client   *http.Client
	log      *zap.Logger
	degraded atomic.Bool
}

func NewRemoteCache(base string, log *zap.Logger) *RemoteCache {
	return &RemoteCache{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: remoteCacheTimeout},
		log:    log,
	}
}

func (r *RemoteCache) url(fp string) string {
	return r.base + "/o/" + fp
}

// degrade trips the local-only switch; only the first caller logs
func (r *RemoteCache) degrade(err error) {
	if r.degraded.CompareAndSwap(false, true) {
		r.log.Warn("remote cache unreachable, continuing local-only",
			zap.String("remote", r.base), zap.Error(err))
	}
}

// Fetch retrieves an object by fingerprint. A miss or any transport
// problem returns ok=false; the build continues without it.
func (r *RemoteCache) Fetch(ctx context.Context, fp string) ([]byte, bool) {
	if r.degraded.Load() {
		return nil, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(fp), nil)
	if err != nil {
		return nil, false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.degrade(err)
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, false
	}
	if resp.StatusCode != http.StatusOK {
		r.degrade(fmt.Errorf("unexpected status %s", resp.Status))
		return nil, false
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		r.degrade(err)
		return nil, false
	}
	r.log.Debug("remote cache hit", zap.String("fingerprint", fp), zap.Int("bytes", len(data)))
	return data, true
}

// Has checks existence without transferring the object
func (r *RemoteCache) Has(ctx context.Context, fp string) bool {
	if r.degraded.Load() {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.url(fp), nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.degrade(err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Push uploads an object, skipping when the server already has it.
// Failures log and drop the upload.
func (r *RemoteCache) Push(ctx context.Context, fp string, object []byte) {
	if r.degraded.Load() {
		return
	}
	if r.Has(ctx, fp) {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.url(fp), bytes.NewReader(object))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := r.client.Do(req)
	if err != nil {
		r.degrade(err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		r.log.Warn("remote cache rejected upload",
			zap.String("fingerprint", fp), zap.String("status", resp.Status))
		return
	}
	r.log.Debug("pushed object to remote cache", zap.String("fingerprint", fp), zap.Int("bytes", len(object)))
}

// RunCacheServer serves a cache directory to other builds
func RunCacheServer(addr string, store *ObjectCache, log *zap.Logger) error {
	r := cacheServerRouter(store, log)
	log.Info("cache server listening", zap.String("addr", addr), zap.String("dir", store.Dir()))
	return r.Run(addr)
}

func cacheServerRouter(store *ObjectCache, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	o := r.Group("/o")
	{
		o.HEAD("/:fp", func(c *gin.Context) {
			fp, ok := validFingerprint(c)
			if !ok {
				return
			}
			if _, found := store.Lookup(fp); !found {
				c.Status(http.StatusNotFound)
				return
			}
			c.Status(http.StatusOK)
		})
		o.GET("/:fp", func(c *gin.Context) {
			fp, ok := validFingerprint(c)
			if !ok {
				return
			}
			path, found := store.Lookup(fp)
			if !found {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown fingerprint"})
				return
			}
			c.Header("Content-Type", "application/octet-stream")
			c.File(path)
		})
		o.PUT("/:fp", func(c *gin.Context) {
			fp, ok := validFingerprint(c)
			if !ok {
				return
			}
			data, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if len(data) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "empty object"})
				return
			}
			if _, err := store.Store(fp, data, CacheMeta{CreatedAt: time.Now().UTC()}); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Status(http.StatusCreated)
		})
	}

	r.GET("/stats", func(c *gin.Context) {
		stats, err := store.Stats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"dir":     stats.Dir,
			"objects": stats.Objects,
			"bytes":   stats.Bytes,
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "pid": os.Getpid()})
	})
	return r
}

func validFingerprint(c *gin.Context) (string, bool) {
	fp := c.Param("fp")
	if len(fp) != 64 || strings.IndexFunc(fp, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f')
	}) >= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fingerprint must be 64 hex characters"})
		return "", false
	}
	return fp, true
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
