package service

import (
	"course_video_backend/internal/model"
	"sort"
)

// mergeSegment 将一段新观看区间并入已合并的不相交区间集，返回仍然有序且不相交的结果。
// 跨会话的重叠区间在这里被吸收，保证累计观看时长不重复计数。
func mergeSegment(segments []model.WatchedSegment, seg model.WatchedSegment) []model.WatchedSegment {
	if seg.End <= seg.Start {
		return segments
	}

	merged := append(segments, seg)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Start < merged[j].Start
	})

	out := merged[:0]
	for _, s := range merged {
		if len(out) == 0 || s.Start > out[len(out)-1].End {
			out = append(out, s)
			continue
		}
		if s.End > out[len(out)-1].End {
			out[len(out)-1].End = s.End
		}
	}
	return out
}

// segmentCoverage 区间集的总覆盖长度（秒）。
func segmentCoverage(segments []model.WatchedSegment) float64 {
	var total float64
	for _, s := range segments {
		total += s.End - s.Start
	}
	return total
}
