// Copyright 2026 Google LLC
// SPDX-License-Identifier: Apache-2.0

package expression

import "testing"

func TestValidateAccepts(t *testing.T) {
	valid := []string{
		`x === 1`,
		`this?this:1`,
		`"𠮷".length`,
		`/abc/.test(x)`,
		`[...arr]`,
		`arr[0]`,
		`obj.field`,
		`Math.max(a, b)`,
		`String(x)`,
		`x.toString()`,
	}

	for _, src := range valid {
		t.Run(src, func(t *testing.T) {
			if _, err := Validate(src); err != nil {
				t.Errorf("Validate(%q) = %v, want accepted", src, err)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	invalid := []string{
		`x = 1`,
		`x++`,
		`--x`,
		`delete obj.field`,
		`new Foo()`,
		`function() { return 1; }`,
		`() => 1`,
		`item.increasePriceByOne()`,
		`while (true) {}`,
		`debugger`,
	}

	for _, src := range invalid {
		t.Run(src, func(t *testing.T) {
			if _, err := Validate(src); err == nil {
				t.Errorf("Validate(%q) = nil, want rejected", src)
			}
		})
	}
}

func TestIsUnconditional(t *testing.T) {
	cases := map[string]bool{
		"":        true,
		"null":    true,
		";":       true,
		"x === 1": false,
	}
	for src, want := range cases {
		if got := IsUnconditional(src); got != want {
			t.Errorf("IsUnconditional(%q) = %v, want %v", src, got, want)
		}
	}
}
