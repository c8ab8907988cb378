package tailer

// versionRange is an inclusive range of versions.
type versionRange struct {
	start uint64
	end   uint64
}

// groupVersions splits ascending versions into contiguous ranges of at most size versions.
func groupVersions(versions []uint64, size uint64) []versionRange {
	if len(versions) == 0 {
		return nil
	}
	if size == 0 {
		size = 1
	}

	var out []versionRange
	cur := versionRange{start: versions[0], end: versions[0]}
	for _, v := range versions[1:] {
		if v == cur.end+1 && v-cur.start < size {
			cur.end = v
			continue
		}
		out = append(out, cur)
		cur = versionRange{start: v, end: v}
	}
	return append(out, cur)
}
