// Package tree resolves folder references and assembles the remote
// folder hierarchy into an ordered in-memory tree.
package tree

import (
	"time"

	"github.com/ApenasGabs/queroAulas/internal/classify"
)

// Node is one entry in the resolved folder tree. Nodes are immutable
// snapshots; a new fetch replaces the whole tree rather than patching it.
type Node struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Class        classify.Class `json:"class"`
	Size         int64          `json:"size,omitempty"`
	ModifiedTime time.Time      `json:"modifiedTime,omitzero"`
	Children     []*Node        `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.Class == classify.Folder
}

// IsVideo reports whether the node is a video.
func (n *Node) IsVideo() bool {
	return n.Class == classify.Video
}

// FindByID finds a node by its ID (recursive).
func FindByID(root *Node, id string) *Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	for _, child := range root.Children {
		if found := FindByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes counts all nodes in a tree.
func CountNodes(root *Node) int {
	if root == nil {
		return 0
	}
	count := 1
	for _, child := range root.Children {
		count += CountNodes(child)
	}
	return count
}

// Counts summarizes a tree by classification.
type Counts struct {
	Folders int
	Videos  int
	Others  int
}

// CountByClass tallies the nodes below root (root itself excluded).
func CountByClass(root *Node) Counts {
	var c Counts
	if root == nil {
		return c
	}
	for _, child := range root.Children {
		switch child.Class {
		case classify.Folder:
			c.Folders++
		case classify.Video:
			c.Videos++
		default:
			c.Others++
		}
		nested := CountByClass(child)
		c.Folders += nested.Folders
		c.Videos += nested.Videos
		c.Others += nested.Others
	}
	return c
}

// Videos returns all video nodes below root in tree order.
func Videos(root *Node) []*Node {
	if root == nil {
		return nil
	}
	var out []*Node
	for _, child := range root.Children {
		if child.IsVideo() {
			out = append(out, child)
		}
		out = append(out, Videos(child)...)
	}
	return out
}
