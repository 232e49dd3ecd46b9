package ledger

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// SnapshotKey is the durable key the ledger is persisted under.
const SnapshotKey = "attendance"

const snapshotVersion = 1

type snapshot struct {
	Version int                `json:"version"`
	Records []AttendanceRecord `json:"records"`
}

func encodeSnapshot(records []AttendanceRecord) ([]byte, error) {
	if records == nil {
		records = []AttendanceRecord{}
	}
	buf, err := json.Marshal(snapshot{Version: snapshotVersion, Records: records})
	return buf, errors.Wrap(err, "encode attendance snapshot")
}

// decodeSnapshot accepts unversioned payloads as version 1. Aggregates are
// rebuilt from the classes and records are ordered by date.
func decodeSnapshot(raw []byte) ([]AttendanceRecord, error) {
	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode attendance snapshot")
	}
	if s.Version > snapshotVersion {
		return nil, errors.Errorf("attendance snapshot version %d is newer than supported %d", s.Version, snapshotVersion)
	}
	for i := range s.Records {
		s.Records[i].recompute()
	}
	sort.SliceStable(s.Records, func(i, j int) bool { return s.Records[i].Date < s.Records[j].Date })
	return s.Records, nil
}
