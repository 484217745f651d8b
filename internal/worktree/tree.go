// Package worktree builds the displayable worktree hierarchy and
// creates/removes git worktrees on behalf of a project.
package worktree

import (
	"sort"

	"github.com/zafnz/grove/internal/project"
)

// RowKind discriminates tree row types.
type RowKind string

const (
	// RowWorktree is a real worktree.
	RowWorktree RowKind = "worktree"
	// RowBaseMarker is a synthetic group header for worktrees based on
	// a branch that is not itself open as a worktree.
	RowBaseMarker RowKind = "baseMarker"
	// RowGhost is the trailing "new worktree" placeholder.
	RowGhost RowKind = "ghost"
)

// TreeRow is one row of the flattened worktree tree. Depth and IsLast
// exist so a renderer can draw connector lines without re-deriving the
// structure.
type TreeRow struct {
	Kind     RowKind
	Worktree *project.Worktree // nil unless Kind is RowWorktree
	BaseRef  string            // marker label, set for RowBaseMarker
	Depth    int
	IsLast   bool
}

// BuildTree flattens a worktree list into display rows. The first
// input worktree is the primary and roots the tree; each linked
// worktree hangs under the primary, under the worktree whose branch
// matches its base ref, or under a synthetic base-marker row when the
// base ref names no visible worktree. Children keep input order within
// a parent; marker groups sort by base ref. A ghost row is always
// appended last. Base-ref cycles cannot recurse forever: a visited set
// guards the walk and anything the walk missed is swept in at depth 1.
func BuildTree(worktrees []*project.Worktree) []TreeRow {
	if len(worktrees) == 0 {
		return []TreeRow{{Kind: RowGhost, Depth: 0, IsLast: true}}
	}

	primary := worktrees[0]

	// Branch name -> worktree, for resolving base refs. The primary
	// wins ties; otherwise first in input order.
	byBranch := make(map[string]*project.Worktree, len(worktrees))
	for i := len(worktrees) - 1; i >= 0; i-- {
		if worktrees[i].Branch != "" {
			byBranch[worktrees[i].Branch] = worktrees[i]
		}
	}

	children := make(map[*project.Worktree][]*project.Worktree)
	markers := make(map[string][]*project.Worktree)

	for _, wt := range worktrees[1:] {
		switch {
		case wt.BaseRef == "" || wt.BaseRef == primary.Branch:
			children[primary] = append(children[primary], wt)
		default:
			parent, visible := byBranch[wt.BaseRef]
			if visible && parent != wt {
				children[parent] = append(children[parent], wt)
			} else {
				markers[wt.BaseRef] = append(markers[wt.BaseRef], wt)
			}
		}
	}

	var rows []TreeRow
	visited := make(map[*project.Worktree]bool)

	// emit walks one subtree iteratively. Each frame is a worktree with
	// its depth and last-sibling flag; pushing children in reverse
	// keeps input order on a LIFO stack.
	type frame struct {
		wt     *project.Worktree
		depth  int
		isLast bool
	}
	emit := func(root frame) {
		stack := []frame{root}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if visited[f.wt] {
				continue
			}
			visited[f.wt] = true
			rows = append(rows, TreeRow{
				Kind:     RowWorktree,
				Worktree: f.wt,
				Depth:    f.depth,
				IsLast:   f.isLast,
			})

			kids := children[f.wt]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{
					wt:     kids[i],
					depth:  f.depth + 1,
					isLast: i == len(kids)-1,
				})
			}
		}
	}

	emit(frame{wt: primary, depth: 0})

	markerRefs := make([]string, 0, len(markers))
	for ref := range markers {
		markerRefs = append(markerRefs, ref)
	}
	sort.Strings(markerRefs)

	for _, ref := range markerRefs {
		rows = append(rows, TreeRow{Kind: RowBaseMarker, BaseRef: ref, Depth: 0})
		group := markers[ref]
		for i, wt := range group {
			emit(frame{wt: wt, depth: 1, isLast: i == len(group)-1})
		}
	}

	// Defensive sweep: worktrees reachable only through a base-ref
	// cycle were classified as someone's child but never walked. Root
	// them under the primary so every input appears exactly once.
	for _, wt := range worktrees {
		if !visited[wt] {
			emit(frame{wt: wt, depth: 1, isLast: true})
		}
	}

	rows = append(rows, TreeRow{Kind: RowGhost, Depth: 0, IsLast: true})
	return rows
}
