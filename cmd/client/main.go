// cmd/client/main.go
// Clay store client: disperse a file as k+m coded chunks across nodes,
// retrieve it back from any k chunks, or repair a lost node's chunk from
// beta sub-chunks per helper instead of k full chunks.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dattu/clay_object_store/pkg/clay"
	"github.com/dattu/clay_object_store/pkg/fingerprint"
	"github.com/dattu/clay_object_store/pkg/protocol"
	"github.com/dattu/clay_object_store/pkg/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	mode := flag.String("mode", "disperse", "disperse | retrieve | repair")
	filePath := flag.String("file", "", "Path to input (disperse) or output (retrieve)")
	objectID := flag.String("id", "", "Unique object ID")
	peersFlag := flag.String("peers", "", "Comma-separated list of host:port, one per chunk index")
	k := flag.Int("k", 4, "Number of data chunks")
	m := flag.Int("m", 2, "Number of parity chunks")
	d := flag.Int("d", 5, "Number of repair helpers")
	lost := flag.Int("lost", -1, "Chunk index to repair (repair mode)")
	flag.Parse()

	if *objectID == "" || *peersFlag == "" {
		log.Fatal("flags -id and -peers are mandatory")
	}
	peers := strings.Split(*peersFlag, ",")
	for i := range peers {
		peers[i] = strings.TrimSpace(peers[i])
	}

	code, err := clay.New(*k, *m, *d)
	if err != nil {
		log.Fatalf("clay.New: %v", err)
	}
	if len(peers) != code.TotalChunks() {
		log.Fatalf("need %d peers (one per chunk), got %d", code.TotalChunks(), len(peers))
	}

	pool := newClientPool()
	defer pool.close()

	switch *mode {
	case "disperse":
		if *filePath == "" {
			log.Fatal("flag -file is mandatory for disperse")
		}
		disperse(pool, peers, code, *filePath, *objectID)
	case "retrieve":
		if *filePath == "" {
			log.Fatal("flag -file is mandatory for retrieve")
		}
		retrieve(pool, peers, code, *filePath, *objectID)
	case "repair":
		if *lost < 0 || *lost >= code.TotalChunks() {
			log.Fatalf("flag -lost must name a chunk in [0, %d)", code.TotalChunks())
		}
		repair(pool, peers, code, *objectID, *lost)
	default:
		log.Fatalf("unknown mode %q; must be disperse, retrieve or repair", *mode)
	}
}

/* ------------------------------------------------------------------------ */
/* connection pool                                                          */
/* ------------------------------------------------------------------------ */

type clientPool struct {
	conns map[string]*grpc.ClientConn
}

func newClientPool() *clientPool {
	return &clientPool{conns: make(map[string]*grpc.ClientConn)}
}

func (p *clientPool) client(addr string) (protocol.ChunkServiceClient, error) {
	if c, ok := p.conns[addr]; ok {
		return protocol.NewChunkServiceClient(c), nil
	}
	c, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		protocol.DialOption(),
	)
	if err != nil {
		return nil, err
	}
	p.conns[addr] = c
	return protocol.NewChunkServiceClient(c), nil
}

func (p *clientPool) close() {
	for _, c := range p.conns {
		c.Close()
	}
}

/* ------------------------------------------------------------------------ */
/* disperse                                                                 */
/* ------------------------------------------------------------------------ */

func disperse(pool *clientPool, peers []string, code *clay.Code, path, id string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("ReadFile: %v", err)
	}

	chunkSize := code.ChunkSize(len(raw))
	padded := make([]byte, chunkSize*code.MinChunksToDecode())
	copy(padded, raw)

	data := make([][]byte, code.MinChunksToDecode())
	for i := range data {
		data[i] = padded[i*chunkSize : (i+1)*chunkSize]
	}
	parity, err := code.Encode(data)
	if err != nil {
		log.Fatalf("Encode: %v", err)
	}
	chunks := append(data, parity...)

	fpGen, err := fingerprint.NewRandom()
	if err != nil {
		log.Fatalf("fingerprint.NewRandom: %v", err)
	}
	scSize := chunkSize / code.SubChunkCount()
	fps := make([][]uint64, len(chunks))
	for i, ch := range chunks {
		fps[i] = fpGen.EvalSubChunks(ch, scSize)
	}
	man := &storage.Manifest{
		ObjectID:    id,
		ObjectSize:  len(raw),
		ChunkSize:   chunkSize,
		K:           code.MinChunksToDecode(),
		M:           code.TotalChunks() - code.MinChunksToDecode(),
		D:           code.D(),
		Seed:        fpGen.Seed(),
		SubChunkFPs: fps,
		Created:     time.Now().UTC(),
	}

	for i, ch := range chunks {
		sendChunk(pool, peers[i], &protocol.StoreChunkRequest{
			ObjectID:   id,
			ChunkIndex: uint32(i),
			Chunk:      ch,
			Manifest:   man,
		})
		fmt.Printf("Chunk %d/%d stored on %s\n", i+1, len(chunks), peers[i])
	}
	fmt.Printf("Disperse complete for %q (%d bytes, chunk size %d)\n", id, len(raw), chunkSize)
}

func sendChunk(pool *clientPool, addr string, req *protocol.StoreChunkRequest) {
	for attempt := 1; attempt <= 3; attempt++ {
		client, err := pool.client(addr)
		if err != nil {
			log.Printf("dial %s failed (%d/3): %v", addr, attempt, err)
			time.Sleep(2 * time.Second)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		resp, err := client.StoreChunk(ctx, req)
		cancel()
		if err != nil || !resp.Ok {
			log.Printf("store to %s failed (%d/3): %v / %s", addr, attempt, err, respError(resp))
			time.Sleep(2 * time.Second)
			continue
		}
		return
	}
	log.Fatalf("chunk %d -> %s failed after 3 attempts", req.ChunkIndex, addr)
}

func respError(r *protocol.StoreChunkResponse) string {
	if r == nil {
		return ""
	}
	return r.Error
}

/* ------------------------------------------------------------------------ */
/* retrieve                                                                 */
/* ------------------------------------------------------------------------ */

func retrieve(pool *clientPool, peers []string, code *clay.Code, out, id string) {
	ctx := context.Background()

	man := fetchManifest(ctx, pool, peers, id)
	fpGen := fingerprint.NewWithSeed(man.Seed)
	scSize := man.ChunkSize / code.SubChunkCount()

	/* fetch any k verified chunks */
	have := make(map[int][]byte)
	for i, addr := range peers {
		if len(have) >= code.MinChunksToDecode() {
			break
		}
		client, err := pool.client(addr)
		if err != nil {
			continue
		}
		r, err := client.FetchChunk(ctx, &protocol.FetchChunkRequest{ObjectID: id, ChunkIndex: uint32(i)})
		if err != nil || !r.Ok {
			continue
		}
		if !verifyChunk(fpGen, man, i, r.Chunk, scSize) {
			log.Printf("chunk %d from %s failed verification", i, addr)
			continue
		}
		have[i] = r.Chunk
	}
	if len(have) < code.MinChunksToDecode() {
		log.Fatalf("only %d/%d good chunks; cannot decode", len(have), code.MinChunksToDecode())
	}

	/* decode missing data chunks, if any */
	var missing []int
	for i := 0; i < code.MinChunksToDecode(); i++ {
		if _, ok := have[i]; !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		recovered, err := code.Decode(missing, have, man.ChunkSize)
		if err != nil {
			log.Fatalf("Decode: %v", err)
		}
		for i, ch := range recovered {
			have[i] = ch
		}
	}

	buf := &bytes.Buffer{}
	for i := 0; i < code.MinChunksToDecode(); i++ {
		buf.Write(have[i])
	}
	payload := buf.Bytes()[:man.ObjectSize]
	if err := os.WriteFile(out, payload, 0o644); err != nil {
		log.Fatalf("WriteFile: %v", err)
	}
	fmt.Printf("Retrieved %q -> %q (%d bytes)\n", id, out, len(payload))
}

func fetchManifest(ctx context.Context, pool *clientPool, peers []string, id string) *storage.Manifest {
	for _, addr := range peers {
		client, err := pool.client(addr)
		if err != nil {
			continue
		}
		r, err := client.GetManifest(ctx, &protocol.ManifestRequest{ObjectID: id})
		if err == nil && r.Ok && r.Manifest != nil {
			return r.Manifest
		}
	}
	log.Fatalf("no peer holds a manifest for %q", id)
	return nil
}

func verifyChunk(fp *fingerprint.Fingerprint, man *storage.Manifest, idx int, chunk []byte, scSize int) bool {
	if len(chunk) != man.ChunkSize {
		return false
	}
	got := fp.EvalSubChunks(chunk, scSize)
	want := man.SubChunkFPs[idx]
	for z := range want {
		if got[z] != want[z] {
			return false
		}
	}
	return true
}

/* ------------------------------------------------------------------------ */
/* repair                                                                   */
/* ------------------------------------------------------------------------ */

func repair(pool *clientPool, peers []string, code *clay.Code, id string, lost int) {
	ctx := context.Background()

	man := fetchManifest(ctx, pool, peers, id)
	scSize := man.ChunkSize / code.SubChunkCount()

	available := make([]int, 0, code.TotalChunks()-1)
	for i := 0; i < code.TotalChunks(); i++ {
		if i != lost {
			available = append(available, i)
		}
	}
	minimum, err := code.MinimumToDecode([]int{lost}, available)
	if err != nil {
		log.Fatalf("MinimumToDecode: %v", err)
	}

	helperData := make(map[int][]byte, len(minimum))
	fetched := 0
	for helper, ranges := range minimum {
		client, err := pool.client(peers[helper])
		if err != nil {
			log.Fatalf("dial helper %d (%s): %v", helper, peers[helper], err)
		}
		req := &protocol.FetchSubChunksRequest{ObjectID: id, ChunkIndex: uint32(helper)}
		for _, r := range ranges {
			req.Ranges = append(req.Ranges, protocol.SubChunkRange{Start: r.Start, Count: r.Count})
		}
		r, err := client.FetchSubChunks(ctx, req)
		if err != nil || !r.Ok {
			log.Fatalf("FetchSubChunks from helper %d: %v", helper, err)
		}
		helperData[helper] = r.Data
		fetched += len(r.Data)
	}

	recovered, err := code.Decode([]int{lost}, helperData, man.ChunkSize)
	if err != nil {
		log.Fatalf("repair decode: %v", err)
	}
	chunk := recovered[lost]

	fpGen := fingerprint.NewWithSeed(man.Seed)
	if !verifyChunk(fpGen, man, lost, chunk, scSize) {
		log.Fatalf("repaired chunk %d failed fingerprint verification", lost)
	}

	sendChunk(pool, peers[lost], &protocol.StoreChunkRequest{
		ObjectID:   id,
		ChunkIndex: uint32(lost),
		Chunk:      chunk,
		Manifest:   man,
	})

	full := code.MinChunksToDecode() * man.ChunkSize
	fmt.Printf("Repaired chunk %d of %q: fetched %d bytes from %d helpers (full decode would read %d)\n",
		lost, id, fetched, len(minimum), full)
}
