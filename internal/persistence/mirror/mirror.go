// Package mirror uploads journal and archive files to S3-compatible object
// storage in the background. Uploads are best-effort: the queue is bounded
// and saturation drops jobs rather than stalling a tick.
package mirror

import (
	"context"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
	Insecure  bool   `yaml:"insecure"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	Enqueued      uint64 `json:"enqueued_total"`
	Dropped       uint64 `json:"dropped_total"`
	UploadSuccess uint64 `json:"upload_success_total"`
	UploadFail    uint64 `json:"upload_fail_total"`
}

type Mirror struct {
	client  *minio.Client
	bucket  string
	dataDir string
	prefix  string
	log     *log.Logger

	jobs chan string
	wg   sync.WaitGroup

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	success  atomic.Uint64
	failed   atomic.Uint64
}

// New builds the uploader and starts its workers. dataDir is the local
// root the object keys are made relative to.
func New(cfg Config, dataDir string, logger *log.Logger) (*Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	m := &Mirror{
		client:  client,
		bucket:  cfg.Bucket,
		dataDir: dataDir,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		log:     logger,
		jobs:    make(chan string, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.uploadOne(p)
			}
		}()
	}
	return m, nil
}

// Enqueue schedules one local file for upload. Never blocks.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	m.enqueued.Add(1)
	select {
	case m.jobs <- localPath:
	default:
		m.dropped.Add(1)
		m.log.Printf("mirror queue full, dropped %s", localPath)
	}
}

func (m *Mirror) uploadOne(localPath string) {
	key, err := filepath.Rel(m.dataDir, localPath)
	if err != nil {
		key = filepath.Base(localPath)
	}
	key = filepath.ToSlash(key)
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		m.failed.Add(1)
		m.log.Printf("mirror upload %s: %v", key, err)
		return
	}
	m.success.Add(1)
}

// Close drains the queue and stops the workers.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(m.jobs),
		Enqueued:      m.enqueued.Load(),
		Dropped:       m.dropped.Load(),
		UploadSuccess: m.success.Load(),
		UploadFail:    m.failed.Load(),
	}
}
