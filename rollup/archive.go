package rollup

import "github.com/jeffpierce/cassandra-rollup/tree"

// Archive is a retention band derived fresh on every rollup cycle: a
// precision, how many samples of it are retained, the window of time it
// currently covers, and the slices backing that window.
type Archive struct {
	Precision uint32
	Retention uint32
	StartTime int64
	EndTime   int64
	Slices    []tree.SliceHandle
}

// deriveArchives chains retention bands backward from now, aligned to the
// finest precision, matching node_handler.py's node_found loop exactly:
// archiveEnd = t - (t % precision); archiveStart = archiveEnd - precision*retention;
// t := archiveStart for the next (coarser) archive.
func deriveArchives(retentions []tree.Retention, slices []tree.SliceHandle, now int64) []*Archive {
	archives := make([]*Archive, 0, len(retentions))
	t := now

	for _, r := range retentions {
		precision := int64(r.Precision)
		end := t - (t % precision)
		start := end - precision*int64(r.RetentionCount)
		t = start

		var archiveSlices []tree.SliceHandle
		for _, s := range slices {
			if s.Step() == r.Precision {
				archiveSlices = append(archiveSlices, s)
			}
		}

		archives = append(archives, &Archive{
			Precision: r.Precision,
			Retention: r.RetentionCount,
			StartTime: start,
			EndTime:   end,
			Slices:    archiveSlices,
		})
	}

	return archives
}
