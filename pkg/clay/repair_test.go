// pkg/clay/repair_test.go
package clay

import (
	"bytes"
	"errors"
	"testing"
)

// fetchHelperData extracts the requested sub-chunk ranges from full chunks,
// returning the helper buffers and the total bytes read.
func fetchHelperData(chunks [][]byte, minimum map[int][]SubChunkRange, scSize int) (map[int][]byte, int) {
	helperData := make(map[int][]byte, len(minimum))
	total := 0
	for helper, ranges := range minimum {
		var buf []byte
		for _, r := range ranges {
			buf = append(buf, chunks[helper][r.Start*scSize:(r.Start+r.Count)*scSize]...)
		}
		helperData[helper] = buf
		total += len(buf)
	}
	return helperData, total
}

func availExcept(n int, erased []int) []int {
	gone := make(map[int]bool)
	for _, e := range erased {
		gone[e] = true
	}
	var avail []int
	for i := 0; i < n; i++ {
		if !gone[i] {
			avail = append(avail, i)
		}
	}
	return avail
}

func TestRepairEveryNode(t *testing.T) {
	params := [][3]int{
		{4, 2, 5},   // q=2, alpha=8, beta=4
		{8, 4, 11},  // q=4, alpha=64, beta=16
		{10, 4, 13}, // q=4, alpha=256, beta=64, nu=2
		{6, 3, 7},   // q=2, alpha=32, nu=1: one aloof survivor per repair
		{8, 4, 10},  // q=3, alpha=81: d < n-1, aloof path
	}
	for _, p := range params {
		code, err := New(p[0], p[1], p[2])
		if err != nil {
			t.Fatalf("New(%v): %v", p, err)
		}
		chunkSize := code.Alpha() * 4
		scSize := 4
		data, parity := encodeStripe(t, code, chunkSize, int64(p[2]))
		chunks := allChunks(data, parity)
		n := code.TotalChunks()

		for lost := 0; lost < n; lost++ {
			avail := availExcept(n, []int{lost})
			minimum, err := code.MinimumToDecode([]int{lost}, avail)
			if err != nil {
				t.Fatalf("(%v) MinimumToDecode(%d): %v", p, lost, err)
			}
			if len(minimum) != code.D() {
				t.Fatalf("(%v) node %d: %d helpers, want d=%d", p, lost, len(minimum), code.D())
			}
			helperData, total := fetchHelperData(chunks, minimum, scSize)
			if want := code.D() * code.Beta() * scSize; total != want {
				t.Fatalf("(%v) node %d: fetched %d bytes, want d*beta*sigma = %d", p, lost, total, want)
			}

			out, err := code.Repair([]int{lost}, helperData, chunkSize)
			if err != nil {
				t.Fatalf("(%v) Repair(%d): %v", p, lost, err)
			}
			if !bytes.Equal(out[lost], chunks[lost]) {
				t.Fatalf("(%v) Repair(%d): chunk mismatch", p, lost)
			}
		}
	}
}

func TestRepairThroughDecode(t *testing.T) {
	code, err := New(4, 2, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunkSize := 64
	scSize := chunkSize / code.Alpha()
	data, parity := encodeStripe(t, code, chunkSize, 77)
	chunks := allChunks(data, parity)

	lost := 0
	avail := availExcept(code.TotalChunks(), []int{lost})
	minimum, err := code.MinimumToDecode([]int{lost}, avail)
	if err != nil {
		t.Fatalf("MinimumToDecode: %v", err)
	}
	helperData, _ := fetchHelperData(chunks, minimum, scSize)

	out, err := code.Decode([]int{lost}, helperData, chunkSize)
	if err != nil {
		t.Fatalf("Decode on repair path: %v", err)
	}
	if !bytes.Equal(out[lost], chunks[lost]) {
		t.Fatal("repair through Decode mismatched")
	}
}

func TestHelperSelectionIncludesYSection(t *testing.T) {
	code, err := New(8, 4, 11) // q=4
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := code.TotalChunks()
	for lost := 0; lost < n; lost++ {
		avail := availExcept(n, []int{lost})
		minimum, err := code.MinimumToDecode([]int{lost}, avail)
		if err != nil {
			t.Fatalf("MinimumToDecode(%d): %v", lost, err)
		}
		l := code.logical(lost)
		y := l / code.q
		for x := 0; x < code.q; x++ {
			companion := y*code.q + x
			if companion == l || code.shortened(companion) {
				continue
			}
			if _, ok := minimum[code.physical(companion)]; !ok {
				t.Fatalf("node %d: y-section companion %d missing from helpers", lost, code.physical(companion))
			}
		}
		// every helper serves the same beta sub-chunks
		for helper, ranges := range minimum {
			total := 0
			for _, r := range ranges {
				total += r.Count
			}
			if total != code.Beta() {
				t.Fatalf("node %d: helper %d serves %d sub-chunks, want beta=%d", lost, helper, total, code.Beta())
			}
		}
	}
}

func TestIsRepair(t *testing.T) {
	code, err := New(4, 2, 5) // q=2: logical pairs (0,1), (2,3), (4,5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !code.IsRepair([]int{0}, []int{1, 2, 3, 4, 5}) {
		t.Error("single failure with full helpers must be repairable")
	}
	if code.IsRepair([]int{0}, []int{2, 3, 4, 5}) {
		t.Error("missing y-section companion 1 must block repair")
	}
	if code.IsRepair([]int{0, 2}, []int{1, 3, 4, 5}) {
		t.Error("two wanted chunks must use decode")
	}
	if code.IsRepair([]int{0}, []int{0, 1, 2, 3, 4, 5}) {
		t.Error("nothing lost: not a repair")
	}
	if code.IsRepair([]int{0}, []int{1, 2, 3}) {
		t.Error("fewer than d available must block repair")
	}
}

func TestMultiFailureSameSectionRejected(t *testing.T) {
	code, err := New(4, 2, 5) // q=2: e_y=2 in one section exceeds q-1
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if code.IsRepairablePattern([]int{0, 1}) {
		t.Error("q=2 with both section members lost must not be repairable")
	}
	// the caller falls back to decode: repair would read at least as much
	betaE := code.RepairSubChunkCount([]int{0, 1})
	if code.D()*betaE < code.MinChunksToDecode()*code.Alpha() {
		t.Errorf("d*beta_E = %d unexpectedly below k*alpha = %d",
			code.D()*betaE, code.MinChunksToDecode()*code.Alpha())
	}
}

func TestMultiFailureRepair(t *testing.T) {
	code, err := New(8, 4, 11) // d = n-1, q=4: up to 3 failures in one section
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunkSize := code.Alpha() * 4
	scSize := 4
	data, parity := encodeStripe(t, code, chunkSize, 21)
	chunks := allChunks(data, parity)

	erased := []int{0, 1} // same y-section (logical 0..3)
	if !code.IsRepairablePattern(erased) {
		t.Fatal("two failures in one y-section must be repairable at d=n-1")
	}
	avail := availExcept(code.TotalChunks(), erased)
	minimum, err := code.MinimumToRepairChunks(erased, avail)
	if err != nil {
		t.Fatalf("MinimumToRepairChunks: %v", err)
	}
	if len(minimum) != code.TotalChunks()-len(erased) {
		t.Fatalf("%d helpers, want all %d survivors", len(minimum), code.TotalChunks()-len(erased))
	}

	betaE := code.RepairSubChunkCount(erased)
	helperData, total := fetchHelperData(chunks, minimum, scSize)
	if want := len(minimum) * betaE * scSize; total != want {
		t.Fatalf("fetched %d bytes, want d_E*beta_E*sigma = %d", total, want)
	}

	out, err := code.Repair(erased, helperData, chunkSize)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	for _, e := range erased {
		if !bytes.Equal(out[e], chunks[e]) {
			t.Fatalf("multi repair: chunk %d mismatch", e)
		}
	}
}

func TestRepairRejectsBadHelpers(t *testing.T) {
	code, err := New(4, 2, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	chunkSize := 64
	scSize := chunkSize / code.Alpha()
	data, parity := encodeStripe(t, code, chunkSize, 31)
	chunks := allChunks(data, parity)

	lost := 0
	avail := availExcept(code.TotalChunks(), []int{lost})
	minimum, err := code.MinimumToDecode([]int{lost}, avail)
	if err != nil {
		t.Fatalf("MinimumToDecode: %v", err)
	}
	helperData, _ := fetchHelperData(chunks, minimum, scSize)

	// helper listed as erased
	if _, err := code.Repair([]int{lost, 1}, helperData, chunkSize); err == nil {
		t.Error("expected error when a helper is also erased")
	}

	// short helper buffer
	for h := range helperData {
		helperData[h] = helperData[h][:scSize]
		break
	}
	if _, err := code.Repair([]int{lost}, helperData, chunkSize); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("truncated helper: got %v, want ErrInvalidInput", err)
	}
}
