package daemon

import (
	"os"
	"strconv"
	"strings"

	"github.com/BYTE-6D65/tunedaemon/internal/tuneerr"
	storagectl "github.com/BYTE-6D65/tunedaemon/pkg/controller/storage"
)

// diskstatReader re-reads /sys/block/<dev>/stat each cycle and derives
// the per-cycle deltas the storage controller consumes (spec §4.6). The
// 11-plus-field layout is documented in Documentation/admin-guide/iostats.rst;
// only the fields the controller's math actually uses are kept.
type diskstatReader struct {
	path string

	prevReadIOs, prevReadMerges, prevReadSectors, prevReadTicks uint64
	prevWriteIOs, prevWriteTicks                                uint64
	firstRead                                                   bool
}

func newDiskstatReader(device string) *diskstatReader {
	return &diskstatReader{path: "/sys/block/" + device + "/stat", firstRead: true}
}

func (r *diskstatReader) read() (storagectl.DeviceStats, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return storagectl.DeviceStats{}, classifyDiskstatErr(r.path, err)
	}
	fields := strings.Fields(string(b))
	if len(fields) < 11 {
		return storagectl.DeviceStats{}, tuneerr.New(tuneerr.PsiParseError, r.path, "fewer than 11 fields")
	}

	vals := make([]uint64, 11)
	for i := 0; i < 11; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return storagectl.DeviceStats{}, tuneerr.Wrap(tuneerr.PsiParseError, r.path, err)
		}
		vals[i] = v
	}

	readIOs, readMerges, readSectors, readTicks := vals[0], vals[1], vals[2], vals[3]
	writeIOs, writeTicks := vals[4], vals[7]
	inFlight := vals[8]

	stats := storagectl.DeviceStats{InFlight: float64(inFlight)}
	if r.firstRead {
		r.firstRead = false
	} else {
		stats.ReadIOsDelta = float64(delta(readIOs, r.prevReadIOs))
		stats.ReadMergesDelta = float64(delta(readMerges, r.prevReadMerges))
		stats.ReadSectorsDelta = float64(delta(readSectors, r.prevReadSectors))
		stats.ReadTicksDelta = float64(delta(readTicks, r.prevReadTicks))
		stats.WriteIOsDelta = float64(delta(writeIOs, r.prevWriteIOs))
		stats.WriteTicksDelta = float64(delta(writeTicks, r.prevWriteTicks))
	}
	r.prevReadIOs, r.prevReadMerges, r.prevReadSectors, r.prevReadTicks = readIOs, readMerges, readSectors, readTicks
	r.prevWriteIOs, r.prevWriteTicks = writeIOs, writeTicks

	return stats, nil
}

func classifyDiskstatErr(path string, err error) error {
	if os.IsNotExist(err) {
		return tuneerr.Wrap(tuneerr.InvalidPath, path, err)
	}
	if os.IsPermission(err) {
		return tuneerr.Wrap(tuneerr.PermissionDenied, path, err)
	}
	return tuneerr.Wrap(tuneerr.IO, path, err)
}
