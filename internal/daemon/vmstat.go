package daemon

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/BYTE-6D65/tunedaemon/internal/tuneerr"
)

// vmstatReader re-reads /proc/vmstat each cycle and derives the deltas
// the memory controller consumes (spec §4.5: "VM statistics delta
// (pgscan, pgsteal, workingset_refault, active/inactive LRU sizes)").
// Counters in /proc/vmstat are cumulative since boot; this reader keeps
// the previous cumulative values so callers get per-cycle deltas.
type vmstatReader struct {
	path string

	prevPgscan, prevPgsteal, prevRefault uint64
	firstRead                            bool
}

func newVMStatReader() *vmstatReader {
	return &vmstatReader{path: "/proc/vmstat", firstRead: true}
}

type vmstatSample struct {
	pgscan, pgsteal, refault uint64
	activeLRU, inactiveLRU   float64
}

func (r *vmstatReader) read() (vmstatSample, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return vmstatSample{}, classifyVMStatErr(err)
	}
	defer f.Close()

	fields := map[string]uint64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) != 2 {
			continue
		}
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			continue
		}
		fields[parts[0]] = v
	}

	pgscan := fields["pgscan_kswapd"] + fields["pgscan_direct"]
	pgsteal := fields["pgsteal_kswapd"] + fields["pgsteal_direct"]
	refault := fields["workingset_refault_anon"] + fields["workingset_refault_file"] + fields["workingset_refault"]
	active := fields["nr_active_anon"] + fields["nr_active_file"]
	inactive := fields["nr_inactive_anon"] + fields["nr_inactive_file"]

	sample := vmstatSample{activeLRU: float64(active), inactiveLRU: float64(inactive)}
	if r.firstRead {
		r.firstRead = false
	} else {
		sample.pgscan = delta(pgscan, r.prevPgscan)
		sample.pgsteal = delta(pgsteal, r.prevPgsteal)
		sample.refault = delta(refault, r.prevRefault)
	}
	r.prevPgscan, r.prevPgsteal, r.prevRefault = pgscan, pgsteal, refault
	return sample, nil
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func classifyVMStatErr(err error) error {
	if os.IsNotExist(err) {
		return tuneerr.Wrap(tuneerr.InvalidPath, "/proc/vmstat", err)
	}
	if os.IsPermission(err) {
		return tuneerr.Wrap(tuneerr.PermissionDenied, "/proc/vmstat", err)
	}
	return tuneerr.Wrap(tuneerr.IO, "/proc/vmstat", err)
}
