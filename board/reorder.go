package board

import (
	"sort"

	"boardsync/domain"
)

// TaskPlacement is one entry of a position-reassignment delta.
type TaskPlacement struct {
	TaskID   string `json:"id"`
	ColumnID string `json:"columnId"`
	Position int    `json:"position"`
}

// ColumnPlacement is one entry of a column reorder delta.
type ColumnPlacement struct {
	ColumnID string `json:"id"`
	Position int    `json:"position"`
}

// MoveTask computes the lists resulting from a drag gesture and the minimal
// delta of changed placements. src and dst are the current ordered lists of
// the source and destination columns; for a same-column move dst is ignored
// and the returned destination list is nil. dstIndex is clamped. A no-op
// gesture returns an empty delta and must not trigger a write.
func MoveTask(src, dst []domain.Task, srcColumnID, dstColumnID, taskID string, dstIndex int) (newSrc, newDst []domain.Task, delta []TaskPlacement) {
	from := indexOfTask(src, taskID)
	if from < 0 {
		return src, dst, nil
	}

	if srcColumnID == dstColumnID {
		to := clamp(dstIndex, len(src)-1)
		if to == from {
			return src, nil, nil
		}
		newSrc = append([]domain.Task(nil), src...)
		moved := newSrc[from]
		newSrc = append(newSrc[:from], newSrc[from+1:]...)
		newSrc = spliceTask(newSrc, moved, to)
		delta = renumberDelta(nil, newSrc, srcColumnID)
		return newSrc, nil, delta
	}

	// The moved task keeps its stale ColumnID here so the renumber pass
	// below emits a delta entry for it even when its index is unchanged.
	moved := src[from]
	newSrc = append([]domain.Task(nil), src[:from]...)
	newSrc = append(newSrc, src[from+1:]...)
	newDst = spliceTask(append([]domain.Task(nil), dst...), moved, clamp(dstIndex, len(dst)))
	delta = renumberDelta(nil, newSrc, srcColumnID)
	delta = renumberDelta(delta, newDst, dstColumnID)
	return newSrc, newDst, delta
}

// MoveColumn relocates one column within the board, the same algorithm one
// level up: columns as items, the board as the single container.
func MoveColumn(cols []domain.Column, columnID string, dstIndex int) ([]domain.Column, []ColumnPlacement) {
	from := indexOfColumn(cols, columnID)
	if from < 0 {
		return cols, nil
	}
	to := clamp(dstIndex, len(cols)-1)
	if to == from {
		return cols, nil
	}
	out := append([]domain.Column(nil), cols...)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out, domain.Column{})
	copy(out[to+1:], out[to:])
	out[to] = moved

	var delta []ColumnPlacement
	for i := range out {
		if out[i].Position != i {
			out[i].Position = i
			delta = append(delta, ColumnPlacement{ColumnID: out[i].ID, Position: i})
		}
	}
	return out, delta
}

// renumberDelta renumbers list in place to 0..n-1 and appends an entry for
// every task whose placement changed.
func renumberDelta(delta []TaskPlacement, list []domain.Task, columnID string) []TaskPlacement {
	for i := range list {
		if list[i].Position != i || list[i].ColumnID != columnID {
			list[i].Position = i
			list[i].ColumnID = columnID
			delta = append(delta, TaskPlacement{TaskID: list[i].ID, ColumnID: columnID, Position: i})
		}
	}
	return delta
}

func spliceTask(list []domain.Task, t domain.Task, at int) []domain.Task {
	list = append(list, domain.Task{})
	copy(list[at+1:], list[at:])
	list[at] = t
	return list
}

func clamp(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

func indexOfTask(list []domain.Task, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfColumn(list []domain.Column, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

func sortTasks(list []domain.Task) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
}

func sortColumns(list []domain.Column) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
}

func renumberTasks(list []domain.Task, columnID string) {
	for i := range list {
		list[i].Position = i
		list[i].ColumnID = columnID
	}
}

func renumberColumns(list []domain.Column) {
	for i := range list {
		list[i].Position = i
	}
}
