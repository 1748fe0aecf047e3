package tree

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"unicode"
	"unicode/utf8"
)

type mode int

const (
	normal mode = iota
	length
)

func isSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc tokenizing Newick notation:
// structural characters are single-rune tokens, everything else
// between them is a label or a number.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		if isSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || isSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return 0, nil, nil
}

// ParseNewick reads a tree in Newick notation and builds the node
// arena. The returned tree is validated.
func ParseNewick(rd io.Reader) (*Tree, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Split(NewickSplit)

	t := &Tree{}
	cur := t.addNode(NoNode)
	m := normal

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			cur = t.addNode(cur)

		case ",":
			if t.nodes[cur].Parent == NoNode {
				return nil, errors.New("top level comma mismatch")
			}
			cur = t.addNode(t.nodes[cur].Parent)

		case ")":
			if t.nodes[cur].Parent == NoNode {
				return nil, errors.New("brackets mismatch")
			}
			cur = t.nodes[cur].Parent

		case ":":
			m = length

		case ";":
			return finishTree(t, cur)

		default:
			switch m {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				t.nodes[cur].BranchLength = l
				m = normal
			default:
				t.nodes[cur].Name = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finishTree(t, cur)
}

func finishTree(t *Tree, cur int) (*Tree, error) {
	if t.nodes[cur].Parent != NoNode {
		return nil, errors.New("brackets mismatch")
	}
	leafID := 0
	for id := range t.nodes {
		if t.IsLeaf(id) {
			t.nodes[id].LeafID = leafID
			leafID++
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
