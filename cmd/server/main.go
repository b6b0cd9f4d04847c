// cmd/server/main.go
// Clay chunk node: stores one erasure-coded chunk per object, serves full
// chunks for decode and sub-chunk ranges for bandwidth-optimal repair.
// Prometheus metrics on -metricsPort, manifests in BoltDB, fragments on
// disk.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dattu/clay_object_store/pkg/clay"
	"github.com/dattu/clay_object_store/pkg/config"
	"github.com/dattu/clay_object_store/pkg/fingerprint"
	"github.com/dattu/clay_object_store/pkg/protocol"
	"github.com/dattu/clay_object_store/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bolt "go.etcd.io/bbolt"
	"google.golang.org/grpc"
)

/* ------------------------------------------------------------------------ */
/* constants                                                                */
/* ------------------------------------------------------------------------ */

const (
	manifestBucket = "manifests"
	receiptBucket  = "receipts"
)

/* ------------------------------------------------------------------------ */
/* Prometheus metrics                                                       */
/* ------------------------------------------------------------------------ */

var (
	storeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clay_store_chunk_total",
		Help: "Total StoreChunk RPC calls.",
	})
	storeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clay_store_chunk_duration_seconds",
		Help:    "Latency of StoreChunk RPCs.",
		Buckets: prometheus.DefBuckets,
	})
	fetchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clay_fetch_chunk_total",
		Help: "Total FetchChunk RPC calls.",
	})
	fetchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "clay_fetch_chunk_duration_seconds",
		Help:    "Latency of FetchChunk RPCs.",
		Buckets: prometheus.DefBuckets,
	})
	subFetchTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clay_fetch_subchunks_total",
		Help: "Total FetchSubChunks RPC calls.",
	})
	subFetchBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clay_fetch_subchunks_bytes_total",
		Help: "Repair bytes served from sub-chunk reads.",
	})
)

/* ------------------------------------------------------------------------ */
/* server struct                                                            */
/* ------------------------------------------------------------------------ */

type server struct {
	protocol.UnimplementedChunkServiceServer

	code      *clay.Code
	manifests *storage.ManifestStore
	receipts  *storage.Batcher
	dataDir   string
	ttl       time.Duration
}

func newServer(code *clay.Code, db *bolt.DB, dataDir string, ttl time.Duration) (*server, error) {
	manifests, err := storage.NewManifestStore(db, manifestBucket)
	if err != nil {
		return nil, err
	}
	return &server{
		code:      code,
		manifests: manifests,
		receipts:  storage.NewBatcher(db, receiptBucket),
		dataDir:   dataDir,
		ttl:       ttl,
	}, nil
}

/* ------------------------------------------------------------------------ */
/* helpers                                                                  */
/* ------------------------------------------------------------------------ */

func (s *server) fragPath(obj string, idx uint32) string {
	return filepath.Join(s.dataDir, obj, fmt.Sprintf("%d.bin", idx))
}

func (s *server) persistFragment(obj string, idx uint32, data []byte) error {
	path := s.fragPath(obj, idx)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return storage.AtomicWrite(path, data, 0o644)
}

func (s *server) loadFragment(obj string, idx uint32) ([]byte, error) {
	return os.ReadFile(s.fragPath(obj, idx))
}

/* ------------------------------------------------------------------------ */
/* RPC – StoreChunk                                                         */
/* ------------------------------------------------------------------------ */

func (s *server) StoreChunk(ctx context.Context, req *protocol.StoreChunkRequest) (*protocol.StoreChunkResponse, error) {
	timer := prometheus.NewTimer(storeLatency)
	defer timer.ObserveDuration()
	storeTotal.Inc()

	log.Printf("[StoreChunk] %s idx=%d bytes=%d", req.ObjectID, req.ChunkIndex, len(req.Chunk))

	man := req.Manifest
	if man == nil {
		var err error
		man, err = s.manifests.Get(req.ObjectID)
		if err != nil {
			return &protocol.StoreChunkResponse{Ok: false, Error: "no manifest for chunk"}, nil
		}
	}
	if int(req.ChunkIndex) >= man.K+man.M {
		return &protocol.StoreChunkResponse{Ok: false, Error: "chunk index out of range"}, nil
	}
	if len(req.Chunk) != man.ChunkSize {
		return &protocol.StoreChunkResponse{Ok: false, Error: "chunk size mismatch"}, nil
	}

	/* integrity check against the manifest fingerprints */
	scSize := man.ChunkSize / s.code.SubChunkCount()
	fp := fingerprint.NewWithSeed(man.Seed)
	got := fp.EvalSubChunks(req.Chunk, scSize)
	want := man.SubChunkFPs[req.ChunkIndex]
	for z := range want {
		if got[z] != want[z] {
			return &protocol.StoreChunkResponse{Ok: false, Error: "fingerprint mismatch"}, nil
		}
	}

	if err := s.persistFragment(req.ObjectID, req.ChunkIndex, req.Chunk); err != nil {
		return &protocol.StoreChunkResponse{Ok: false, Error: "fragment write"}, nil
	}
	if req.Manifest != nil {
		if _, err := s.manifests.Get(req.ObjectID); err != nil {
			if err := s.manifests.Put(req.Manifest); err != nil {
				return &protocol.StoreChunkResponse{Ok: false, Error: "manifest write"}, nil
			}
		}
	}
	s.receipts.Put([]byte(fmt.Sprintf("%s|%d", req.ObjectID, req.ChunkIndex)), []byte{1})
	return &protocol.StoreChunkResponse{Ok: true}, nil
}

/* ------------------------------------------------------------------------ */
/* RPC – FetchChunk, FetchSubChunks, GetManifest                            */
/* ------------------------------------------------------------------------ */

func (s *server) FetchChunk(ctx context.Context, req *protocol.FetchChunkRequest) (*protocol.FetchChunkResponse, error) {
	timer := prometheus.NewTimer(fetchLatency)
	defer timer.ObserveDuration()
	fetchTotal.Inc()

	frag, err := s.loadFragment(req.ObjectID, req.ChunkIndex)
	if err != nil {
		return &protocol.FetchChunkResponse{Ok: false, Error: "fragment missing"}, nil
	}
	return &protocol.FetchChunkResponse{Ok: true, ChunkIndex: req.ChunkIndex, Chunk: frag}, nil
}

func (s *server) FetchSubChunks(ctx context.Context, req *protocol.FetchSubChunksRequest) (*protocol.FetchSubChunksResponse, error) {
	subFetchTotal.Inc()

	frag, err := s.loadFragment(req.ObjectID, req.ChunkIndex)
	if err != nil {
		return &protocol.FetchSubChunksResponse{Ok: false, Error: "fragment missing"}, nil
	}
	alpha := s.code.SubChunkCount()
	if len(frag)%alpha != 0 {
		return &protocol.FetchSubChunksResponse{Ok: false, Error: "fragment not sub-chunk aligned"}, nil
	}
	scSize := len(frag) / alpha

	var data []byte
	for _, r := range req.Ranges {
		if r.Start < 0 || r.Count <= 0 || r.Start+r.Count > alpha {
			return &protocol.FetchSubChunksResponse{Ok: false, Error: "sub-chunk range out of bounds"}, nil
		}
		data = append(data, frag[r.Start*scSize:(r.Start+r.Count)*scSize]...)
	}
	subFetchBytes.Add(float64(len(data)))
	return &protocol.FetchSubChunksResponse{Ok: true, Data: data}, nil
}

func (s *server) GetManifest(ctx context.Context, req *protocol.ManifestRequest) (*protocol.ManifestResponse, error) {
	man, err := s.manifests.Get(req.ObjectID)
	if err != nil {
		return &protocol.ManifestResponse{Ok: false, Error: "manifest missing"}, nil
	}
	return &protocol.ManifestResponse{Ok: true, Manifest: man}, nil
}

/* ------------------------------------------------------------------------ */
/* main                                                                     */
/* ------------------------------------------------------------------------ */

func main() {
	prometheus.MustRegister(storeTotal, storeLatency, fetchTotal, fetchLatency, subFetchTotal, subFetchBytes)

	/* flags */
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	port := flag.Int("port", 0, "gRPC port (overrides config)")
	metricsPort := flag.Int("metricsPort", 0, "HTTP port for /metrics (overrides config)")
	dbPath := flag.String("db", "", "BoltDB file (overrides config)")
	dataDir := flag.String("datadir", "", "fragment directory (overrides config)")
	snapshot := flag.String("snapshot", "", "take snapshot & exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config.Load: %v", err)
	}
	if *port != 0 {
		cfg.Server.GRPCPort = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}
	if *dbPath != "" {
		cfg.Storage.DB = *dbPath
	}
	if *dataDir != "" {
		cfg.Storage.Datadir = *dataDir
	}

	code, err := clay.New(cfg.Code.K, cfg.Code.M, cfg.Code.D)
	if err != nil {
		log.Fatalf("clay.New: %v", err)
	}

	/* /metrics endpoint */
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("Prometheus metrics on %s/metrics", addr)
		log.Fatal(http.ListenAndServe(addr, nil))
	}()

	if err := os.MkdirAll(cfg.Storage.Datadir, 0o755); err != nil {
		log.Fatalf("mkdir datadir: %v", err)
	}
	if cfg.Storage.DB == "" {
		cfg.Storage.DB = fmt.Sprintf("store-%d.db", cfg.Server.GRPCPort)
	}
	db, err := bolt.Open(cfg.Storage.DB, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		log.Fatalf("bolt.Open: %v", err)
	}
	defer db.Close()
	db.Update(func(tx *bolt.Tx) error {
		for _, b := range []string{manifestBucket, receiptBucket} {
			tx.CreateBucketIfNotExists([]byte(b))
		}
		return nil
	})

	if *snapshot != "" {
		runSnapshot(cfg.Storage.Datadir, cfg.Storage.DB, *snapshot)
		return
	}

	s, err := newServer(code, db, cfg.Storage.Datadir, cfg.Object.TTL)
	if err != nil {
		log.Fatalf("newServer: %v", err)
	}
	go s.gcLoop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcServer := grpc.NewServer()
	protocol.RegisterChunkServiceServer(grpcServer, s)
	log.Printf("clay node :%d  (k=%d m=%d d=%d alpha=%d beta=%d) data=%s metrics=%d",
		cfg.Server.GRPCPort, cfg.Code.K, cfg.Code.M, cfg.Code.D,
		code.Alpha(), code.Beta(), cfg.Storage.Datadir, cfg.Server.MetricsPort)
	grpcServer.Serve(lis)
}

/* ------------------------------------------------------------------------ */
/* GC, snapshot helpers                                                     */
/* ------------------------------------------------------------------------ */

func (s *server) gcLoop() {
	tick := time.NewTicker(s.ttl / 2)
	for range tick.C {
		s.gcExpired()
	}
}

func (s *server) gcExpired() {
	expired, err := s.manifests.Expired(time.Now(), s.ttl)
	if err != nil {
		log.Printf("GC scan: %v", err)
		return
	}
	for _, obj := range expired {
		s.deleteObject(obj)
	}
}

func (s *server) deleteObject(obj string) {
	log.Printf("GC delete %s", obj)
	os.RemoveAll(filepath.Join(s.dataDir, obj))
	if err := s.manifests.Delete(obj); err != nil {
		log.Printf("GC delete %s: %v", obj, err)
	}
}

func runSnapshot(dataDir, dbPath, dstDir string) {
	tag := time.Now().Format("20060102-150405")
	dst := filepath.Join(dstDir, tag)
	os.MkdirAll(dst, 0o755)
	copyFile(dbPath, filepath.Join(dst, filepath.Base(dbPath)))
	filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(dataDir, path)
		dest := filepath.Join(dst, rel)
		if info.IsDir() {
			os.MkdirAll(dest, info.Mode())
		} else {
			copyFile(path, dest)
		}
		return nil
	})
	log.Printf("snapshot created at %s", dst)
}

func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()
	io.Copy(out, in)
}
