// Package resolver builds the transitive dependency graph (C4): BFS
// traversal from the root manifest, cycle detection, and a flattened,
// conflict-aware, topologically-ordered install set.
package resolver

import (
	"path/filepath"

	"github.com/seiggy/apm/internal/depref"
	"github.com/seiggy/apm/internal/manifest"
)

const defaultMaxDepth = 10

// DownloadCallback materializes a package that isn't already present
// under apm_modules/, returning its install directory. The core calls
// this at most once per unique id per resolve (§6.4).
type DownloadCallback func(ref depref.Reference, modulesDir string) (installDir string, ok bool)

// DependencyNode is one resolved (or placeholder) package in the graph
// (§3.3).
type DependencyNode struct {
	ID          string
	Ref         depref.Reference
	Manifest    *manifest.Manifest // nil for placeholders
	Depth       int
	ParentID    string // "" for a direct (root) dependency
	ChildrenIDs []string
	Placeholder bool
	Version     string
}

// DependencyTree is the full (first-occurrence) node set plus the depth
// limit applied during traversal and the root package's own manifest.
type DependencyTree struct {
	Nodes        map[string]*DependencyNode
	MaxDepth     int
	RootID       string
	RootManifest *manifest.Manifest
}

// Conflict records that two or more dependency declarations resolved to
// the same id with differing refs: differing declared git refs, or a
// declared ref that differs from the lockfile's resolved_ref (§3.3,
// invariant I3).
type Conflict struct {
	ID              string
	WinningRef      depref.Reference
	WinningParentID string
	LosingRefs      []depref.Reference
	LosingParentIDs []string
}

// FlattenedDependencies is the deduplicated node set plus a topological
// install order and any conflicts found while deduplicating.
type FlattenedDependencies struct {
	Nodes        map[string]*DependencyNode
	InstallOrder []string
	Conflicts    []Conflict
}

// CircularRef records a dependency cycle discovered during BFS.
type CircularRef struct {
	Path []string // ids, in traversal order, ending back at the repeated id
}

// DependencyGraph is the resolver's complete output.
type DependencyGraph struct {
	Tree         *DependencyTree
	Flattened    *FlattenedDependencies
	Errors       []string
	Warnings     []string
	CircularRefs []CircularRef
}

// Options configures a Resolve call.
type Options struct {
	ModulesDir string // relative to root dir; default "apm_modules"
	MaxDepth   int    // default 10
	Download   DownloadCallback
	RefConfig  depref.Config
	Lockfile   *manifest.Lockfile // optional; its resolved_ref entries take part in conflict detection
}

func (o Options) modulesDir() string {
	if o.ModulesDir != "" {
		return o.ModulesDir
	}
	return "apm_modules"
}

func (o Options) maxDepth() int {
	if o.MaxDepth > 0 {
		return o.MaxDepth
	}
	return defaultMaxDepth
}

type queueItem struct {
	ref      depref.Reference
	depth    int
	parentID string
	path     []string // ancestor ids from root to parentID, inclusive
}

// Resolve builds a DependencyGraph from the manifest at rootDir (§4.2).
func Resolve(rootDir string, opts Options) (*DependencyGraph, error) {
	g := &DependencyGraph{
		Tree: &DependencyTree{
			Nodes:    make(map[string]*DependencyNode),
			MaxDepth: opts.maxDepth(),
		},
		Flattened: &FlattenedDependencies{
			Nodes: make(map[string]*DependencyNode),
		},
	}

	root, found, err := manifest.Load(rootDir)
	if err != nil {
		if _, ok := err.(*manifest.ParseError); ok {
			g.Tree.RootID = "error"
			g.Errors = append(g.Errors, err.Error())
			return g, nil
		}
		return nil, err
	}
	if !found {
		// Missing manifest: empty graph with a placeholder root (§4.2 step 1).
		g.Tree.RootID = ""
		return g, nil
	}
	g.Tree.RootManifest = root
	g.Tree.RootID = root.Name

	var queue []queueItem
	for _, depStr := range root.Dependencies.APM {
		ref, perr := depref.Parse(depStr, opts.RefConfig)
		if perr != nil {
			g.Errors = append(g.Errors, perr.Error())
			continue
		}
		queue = append(queue, queueItem{ref: ref, depth: 1, parentID: "", path: []string{}})
	}

	// edges records every parent->id relationship observed, including
	// from occurrences beyond the first — install_order must respect
	// all of them (P8), even though only the first occurrence of an id
	// is explored further.
	edgeSet := make(map[[2]string]bool)
	var edgeOrder [][2]string
	addEdge := func(parent, child string) {
		e := [2]string{parent, child}
		if !edgeSet[e] {
			edgeSet[e] = true
			edgeOrder = append(edgeOrder, e)
		}
	}

	visitedOrder := make([]string, 0) // ids in first-seen BFS order

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		id := item.ref.ID()
		addEdge(item.parentID, id)

		if containsString(item.path, id) {
			cyclePath := append(append([]string{}, item.path...), id)
			g.CircularRefs = append(g.CircularRefs, CircularRef{Path: cyclePath})
			continue // stop descending past the cycle
		}

		existing, seen := g.Tree.Nodes[id]
		if seen {
			recordConflict(g.Flattened, opts.Lockfile, existing, item, id)
			continue // don't re-explore; first occurrence already did
		}

		if item.depth > g.Tree.MaxDepth {
			g.Warnings = append(g.Warnings, "max depth exceeded at "+id+"; stopped descending")
			continue
		}

		node := resolvePackage(rootDir, opts, item, id)
		g.Tree.Nodes[id] = node
		g.Flattened.Nodes[id] = node
		visitedOrder = append(visitedOrder, id)

		if node.ParentID != "" {
			if parent, ok := g.Tree.Nodes[node.ParentID]; ok {
				parent.ChildrenIDs = append(parent.ChildrenIDs, id)
			}
		}

		if node.Placeholder || node.Manifest == nil {
			continue // no further dependencies to enqueue
		}

		childPath := append(append([]string{}, item.path...), id)
		for _, depStr := range node.Manifest.Dependencies.APM {
			childRef, perr := depref.Parse(depStr, opts.RefConfig)
			if perr != nil {
				g.Errors = append(g.Errors, perr.Error())
				continue
			}
			queue = append(queue, queueItem{ref: childRef, depth: item.depth + 1, parentID: id, path: childPath})
		}
	}

	g.Flattened.InstallOrder = topologicalOrder(visitedOrder, edgeOrder)
	return g, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// resolvePackage locates the installed directory for a dependency and
// parses its manifest, producing a placeholder node on any recoverable
// failure (§4.2 steps b-c, §7).
func resolvePackage(rootDir string, opts Options, item queueItem, id string) *DependencyNode {
	ref := item.ref
	installDir := installPath(rootDir, opts.modulesDir(), ref)

	if !dirExists(installDir) {
		if opts.Download != nil {
			if dir, ok := opts.Download(ref, filepath.Join(rootDir, opts.modulesDir())); ok {
				installDir = dir
			}
		}
	}

	if !dirExists(installDir) {
		return &DependencyNode{
			ID:          id,
			Ref:         ref,
			Depth:       item.depth,
			ParentID:    item.parentID,
			Placeholder: true,
			Version:     "unknown",
		}
	}

	pkgManifest, found, err := manifest.Load(installDir)
	if err != nil || !found {
		return &DependencyNode{
			ID:          id,
			Ref:         ref,
			Depth:       item.depth,
			ParentID:    item.parentID,
			Placeholder: true,
			Version:     "unknown",
		}
	}

	return &DependencyNode{
		ID:       id,
		Ref:      ref,
		Manifest: pkgManifest,
		Depth:    item.depth,
		ParentID: item.parentID,
		Version:  pkgManifest.Version,
	}
}

func installPath(rootDir, modulesDir string, ref depref.Reference) string {
	parts := []string{rootDir, modulesDir, ref.Owner, ref.Repo}
	if ref.Subpath != "" {
		parts = append(parts, ref.Subpath)
	}
	if ref.File != "" {
		parts = append(parts, filepath.Dir(ref.File))
	}
	return filepath.Join(parts...)
}

// recordConflict adds or extends a Conflict entry for a duplicate id
// occurrence (§4.2 step 5) when its git_ref differs from the winner's
// or, when a lockfile is supplied, from the lockfile entry's
// resolved_ref. Resolved commits are not compared.
func recordConflict(flat *FlattenedDependencies, lock *manifest.Lockfile, winner *DependencyNode, loser queueItem, id string) {
	differs := winner.Ref.GitRef != loser.ref.GitRef
	if !differs && lock != nil {
		if entry, ok := lock.Dependencies[id]; ok {
			differs = entry.ResolvedRef != loser.ref.GitRef
		}
	}
	if !differs {
		return
	}

	for i := range flat.Conflicts {
		if flat.Conflicts[i].ID == id {
			flat.Conflicts[i].LosingRefs = append(flat.Conflicts[i].LosingRefs, loser.ref)
			flat.Conflicts[i].LosingParentIDs = append(flat.Conflicts[i].LosingParentIDs, loser.parentID)
			return
		}
	}
	flat.Conflicts = append(flat.Conflicts, Conflict{
		ID:              id,
		WinningRef:      winner.Ref,
		WinningParentID: winner.ParentID,
		LosingRefs:      []depref.Reference{loser.ref},
		LosingParentIDs: []string{loser.parentID},
	})
}
