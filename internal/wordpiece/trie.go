package wordpiece

import "unicode/utf8"

// noEntry marks a trie slot that holds no vocabulary id.
const noEntry = -1

// trieNode indexes vocabulary pieces by rune. A node can end both an initial
// piece and a continuation piece with the same text.
type trieNode struct {
	initial  int
	cont     int
	children map[rune]*trieNode
}

func newTrieNode() *trieNode {
	return &trieNode{
		initial:  noEntry,
		cont:     noEntry,
		children: make(map[rune]*trieNode),
	}
}

// insert stores id under text. If the slot for that kind is already taken,
// the stored id is returned and the trie is left unchanged.
func (n *trieNode) insert(text string, id int, continuation bool) int {
	node := n
	for _, r := range text {
		child, ok := node.children[r]
		if !ok {
			child = newTrieNode()
			node.children[r] = child
		}
		node = child
	}

	slot := &node.initial
	if continuation {
		slot = &node.cont
	}
	if *slot != noEntry {
		return *slot
	}
	*slot = id

	return noEntry
}

// lookup returns the node reached by walking text, or nil.
func (n *trieNode) lookup(text string) *trieNode {
	node := n
	for _, r := range text {
		child, ok := node.children[r]
		if !ok {
			return nil
		}
		node = child
	}

	return node
}

// longest finds the longest prefix of s that ends at an eligible node.
// At the start of a token only initial pieces are eligible. Elsewhere a
// continuation piece is preferred, and an initial piece is accepted at nodes
// without one. size is the prefix length in bytes; id is noEntry when nothing
// matched.
func (n *trieNode) longest(s string, atStart bool) (id, size int, continuation bool) {
	id = noEntry
	node := n

	for pos := 0; pos < len(s); {
		r, width := utf8.DecodeRuneInString(s[pos:])
		if r == utf8.RuneError && width == 1 {
			break
		}

		child, ok := node.children[r]
		if !ok {
			break
		}
		node = child
		pos += width

		switch {
		case atStart:
			if node.initial != noEntry {
				id, size, continuation = node.initial, pos, false
			}
		case node.cont != noEntry:
			id, size, continuation = node.cont, pos, true
		case node.initial != noEntry:
			id, size, continuation = node.initial, pos, false
		}
	}

	return id, size, continuation
}
