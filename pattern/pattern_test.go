// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pattern

import "testing"

func TestParseLiteralsAndWildcards(t *testing.T) {
	p, err := Parse("55 8B?? 5?")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(p.Atoms) != 4 {
		t.Fatalf("len(Atoms) = %d, want 4", len(p.Atoms))
	}
	if p.Atoms[0].Kind != Literal || p.Atoms[0].Byte != 0x55 {
		t.Errorf("Atoms[0] = %+v, want Literal 0x55", p.Atoms[0])
	}
	if p.Atoms[1].Kind != Literal || p.Atoms[1].Byte != 0x8B {
		t.Errorf("Atoms[1] = %+v, want Literal 0x8B", p.Atoms[1])
	}
	if p.Atoms[2].Kind != Wildcard {
		t.Errorf("Atoms[2] = %+v, want Wildcard", p.Atoms[2])
	}
	if p.Atoms[3].Kind != NibbleHigh || p.Atoms[3].Byte != 0x50 {
		t.Errorf("Atoms[3] = %+v, want NibbleHigh 0x5_", p.Atoms[3])
	}
}

func TestParseNibbleLow(t *testing.T) {
	p, err := Parse("?A")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.Atoms[0].Kind != NibbleLow || p.Atoms[0].Byte != 0x0A {
		t.Errorf("Atoms[0] = %+v, want NibbleLow 0x_A", p.Atoms[0])
	}
}

func TestParseCaptureAndFollow(t *testing.T) {
	p, err := Parse("E8'$")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(p.Atoms) != 3 {
		t.Fatalf("len(Atoms) = %d, want 3", len(p.Atoms))
	}
	if p.Atoms[1].Kind != Capture || p.Atoms[1].Slot != 0 {
		t.Errorf("Atoms[1] = %+v, want Capture slot 0", p.Atoms[1])
	}
	if p.Atoms[2].Kind != Follow {
		t.Errorf("Atoms[2] = %+v, want Follow", p.Atoms[2])
	}
	if p.Slots != 1 {
		t.Errorf("Slots = %d, want 1", p.Slots)
	}
}

func TestParseSaveJump(t *testing.T) {
	p, err := Parse("B9*{'FF}")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(p.Atoms) != 2 {
		t.Fatalf("len(Atoms) = %d, want 2", len(p.Atoms))
	}
	sj := p.Atoms[1]
	if sj.Kind != SaveJump {
		t.Fatalf("Atoms[1].Kind = %v, want SaveJump", sj.Kind)
	}
	if len(sj.Sub) != 2 || sj.Sub[0].Kind != Capture || sj.Sub[1].Kind != Literal {
		t.Fatalf("unexpected sub-pattern: %+v", sj.Sub)
	}
}

func TestParseAlt(t *testing.T) {
	p, err := Parse("[74|75]")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(p.Atoms) != 1 || p.Atoms[0].Kind != Alt {
		t.Fatalf("Atoms = %+v, want a single Alt", p.Atoms)
	}
	if len(p.Atoms[0].Alts) != 2 {
		t.Fatalf("len(Alts) = %d, want 2", len(p.Atoms[0].Alts))
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{"5", "G1", "*{55", "[74|75", "55 X"}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("MustParse did not panic on invalid input")
		}
	}()
	MustParse("zz")
}
