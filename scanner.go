// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"

	"github.com/binlens/pescan/pattern"
)

// Match is the result of a successful pattern scan: the RVA the match
// began at (mirroring pelite's tuple-struct Match.0) and the RVAs
// written into each declared capture slot, in source order (slot i
// corresponds to the (i+1)-th "'" in the pattern text, i.e. pelite's
// Match.1, Match.2, ...). A slot an untaken alternation branch never
// reached is left as BadRVA.
type Match struct {
	Start Rva
	Slots []Rva
}

// Slot returns the RVA captured in the i-th slot (0-indexed), or
// BadRVA if i is out of range.
func (m Match) Slot(i int) Rva {
	if i < 0 || i >= len(m.Slots) {
		return BadRVA
	}
	return m.Slots[i]
}

// ScannerT executes compiled patterns (package pattern) against a Pe
// view (spec.md §4.I). Obtain one via Scanner(pe); it holds only the
// view reference, so it is cheap to create and safe to share for
// concurrent read-only scans.
type ScannerT struct {
	pe Pe
}

// Exec attempts to match pat starting exactly at start. It returns
// (Match{}, false) on any mismatch or out-of-bounds access encountered
// mid-match — OOB inside a match attempt is a pattern-failure, not an
// error (spec.md §4.I).
func (s *ScannerT) Exec(pat *pattern.Pattern, start Rva) (Match, bool) {
	slots := make([]Rva, pat.Slots)
	for i := range slots {
		slots[i] = BadRVA
	}
	if !runMatch(s.pe, pat.Atoms, start, slots) {
		return Match{}, false
	}
	return Match{Start: start, Slots: slots}, true
}

// MatchesCode returns a lazy iterator over every match of pat starting
// within an executable section (IMAGE_SCN_CNT_CODE or
// IMAGE_SCN_MEM_EXECUTE), in ascending RVA order, sections visited in
// section-table order. Call Next until it returns false; stopping
// early does no extra work.
func (s *ScannerT) MatchesCode(pat *pattern.Pattern) *MatchIter {
	secs, err := SectionHeaders(s.pe)
	if err != nil {
		return &MatchIter{done: true}
	}
	var exec []SectionHeader
	for _, sec := range secs {
		if sec.IsExecutable() {
			exec = append(exec, sec)
		}
	}
	it := &MatchIter{pe: s.pe, pat: pat, sections: exec}
	it.enterSection(0)
	return it
}

// MatchIter is a resumable cursor over MatchesCode's results, in the
// idiom of bufio.Scanner: call Next in a loop, read the current Match
// via Current after each successful Next.
type MatchIter struct {
	pe       Pe
	pat      *pattern.Pattern
	sections []SectionHeader
	secIdx   int
	cursor   Rva
	secEnd   Rva
	done     bool
	current  Match
}

func (it *MatchIter) enterSection(idx int) {
	it.secIdx = idx
	if idx >= len(it.sections) {
		it.done = true
		return
	}
	sec := it.sections[idx]
	it.cursor = Rva(sec.VirtualAddress)
	it.secEnd = Rva(sec.VirtualAddress + sec.VirtualSize)
}

// Next advances to the next match and reports whether one was found.
func (it *MatchIter) Next() bool {
	if it.done {
		return false
	}
	for {
		if it.cursor >= it.secEnd {
			it.enterSection(it.secIdx + 1)
			if it.done {
				return false
			}
			continue
		}
		m, ok := (&ScannerT{pe: it.pe}).Exec(it.pat, it.cursor)
		it.cursor++
		if ok {
			it.current = m
			return true
		}
	}
}

// Current returns the match found by the most recent successful Next.
func (it *MatchIter) Current() Match { return it.current }

// frame is one entry of the interpreter's explicit continuation stack
// (spec.md §4.I: "prefer an explicit cursor + continuation stack over
// a recursive executor, because *{…} and $… can nest arbitrarily").
type frame struct {
	atoms []pattern.Atom
	idx   int

	// isJump frames were entered via a SaveJump atom; on completion the
	// outer frame's cursor is restored to jumpCursor (just past the
	// pointer that was read) rather than wherever the sub-pattern ended up.
	isJump     bool
	jumpCursor Rva

	// isAlt frames were entered via an Alt atom; altBranches holds the
	// untried remaining branches and altCursor the cursor to retry them
	// at. On completion the outer frame resumes from the current cursor
	// (an Alt branch, unlike SaveJump, consumes real bytes that matter).
	isAlt       bool
	altBranches [][]pattern.Atom
	altCursor   Rva
}

// runMatch executes atoms starting at cursor start, writing captures
// into slots by their pre-assigned index. It reports whether the whole
// atom list (including every nested bracket) matched.
func runMatch(pe Pe, atoms []pattern.Atom, start Rva, slots []Rva) bool {
	stack := []frame{{atoms: atoms}}
	cursor := start

	// fail unwinds the stack looking for an Alt frame with an untried
	// branch; if none remains the whole match attempt failed.
	fail := func() bool {
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.isAlt && len(top.altBranches) > 0 {
				top.atoms = top.altBranches[0]
				top.altBranches = top.altBranches[1:]
				top.idx = 0
				cursor = top.altCursor
				return true
			}
			stack = stack[:len(stack)-1]
		}
		return false
	}

	for {
		top := &stack[len(stack)-1]

		if top.idx >= len(top.atoms) {
			resumeCursor := cursor
			wasJump := top.isJump
			jumpCursor := top.jumpCursor
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return true
			}
			if wasJump {
				cursor = jumpCursor
			} else {
				cursor = resumeCursor
			}
			stack[len(stack)-1].idx++
			continue
		}

		atom := top.atoms[top.idx]
		switch atom.Kind {
		case pattern.Literal:
			b, err := DervaUint8(pe, cursor)
			if err != nil || b != atom.Byte {
				if !fail() {
					return false
				}
				continue
			}
			cursor++
			top.idx++

		case pattern.Wildcard:
			if _, err := DervaUint8(pe, cursor); err != nil {
				if !fail() {
					return false
				}
				continue
			}
			cursor++
			top.idx++

		case pattern.NibbleHigh:
			b, err := DervaUint8(pe, cursor)
			if err != nil || b&0xf0 != atom.Byte {
				if !fail() {
					return false
				}
				continue
			}
			cursor++
			top.idx++

		case pattern.NibbleLow:
			b, err := DervaUint8(pe, cursor)
			if err != nil || b&0x0f != atom.Byte {
				if !fail() {
					return false
				}
				continue
			}
			cursor++
			top.idx++

		case pattern.Capture:
			if atom.Slot >= 0 && atom.Slot < len(slots) {
				slots[atom.Slot] = cursor
			}
			top.idx++

		case pattern.Follow:
			disp, err := derivaInt32(pe, cursor)
			if err != nil {
				if !fail() {
					return false
				}
				continue
			}
			cursor = Rva(int64(cursor) + 4 + int64(disp))
			top.idx++

		case pattern.SaveJump:
			target, width, err := readPointerTarget(pe, cursor)
			if err != nil {
				if !fail() {
					return false
				}
				continue
			}
			after := cursor + Rva(width)
			stack = append(stack, frame{atoms: atom.Sub, isJump: true, jumpCursor: after})
			cursor = target

		case pattern.Alt:
			if len(atom.Alts) == 0 {
				if !fail() {
					return false
				}
				continue
			}
			stack = append(stack, frame{
				atoms:       atom.Alts[0],
				isAlt:       true,
				altBranches: atom.Alts[1:],
				altCursor:   cursor,
			})

		default:
			if !fail() {
				return false
			}
		}
	}
}

// derivaInt32 reads a 4-byte little-endian signed displacement at rva,
// the operand width of a relative call/jmp (E8/E9) regardless of the
// image's own pointer width.
func derivaInt32(pe Pe, rva Rva) (int32, error) {
	b, err := pe.Slice(rva, 4, 1)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// readPointerTarget reads the save-jump operand at rva — 4 bytes for a
// PE32 image, 8 for PE32+ — interprets it as an absolute VA, and
// converts it to an RVA. It returns the byte width consumed so the
// caller can restore the cursor past the read.
func readPointerTarget(pe Pe, rva Rva) (Rva, int, error) {
	width := 4
	var va uint64
	if pe.Headers().Is64 {
		width = 8
		b, err := pe.Slice(rva, 8, 1)
		if err != nil {
			return 0, 0, err
		}
		va = binary.LittleEndian.Uint64(b)
	} else {
		b, err := pe.Slice(rva, 4, 1)
		if err != nil {
			return 0, 0, err
		}
		va = uint64(binary.LittleEndian.Uint32(b))
	}
	target, err := VaToRva(pe, Va(va))
	if err != nil {
		return 0, 0, err
	}
	return target, width, nil
}
