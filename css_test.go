package restyle

import (
	"slices"
	"strings"
	"testing"
)

func TestNestedAtrule(t *testing.T) {

	str := `
	@page {
		size: a5;
		@bottom-right-corner {
			border: 4pt solid green;
			border-bottom-color: rebeccapurple;
		}

		/* @top-left-corner {
			border: 1pt solid green;
			border-bottom-color: rebeccapurple;
		} */

	@top-right-corner {
			border: 3pt solid green;
			border-bottom-color: rebeccapurple;
		}

		@bottom-left-corner {
			border: 2pt solid green;
			border-bottom-color: rebeccapurple;
		}

	}`
	toks := tokenizeCSSString(str)
	bl := consumeBlock(toks, false)
	if len(bl.childAtRules[0].childAtRules) != 3 {
		t.Errorf("want 3 child @ rules, got %d", len(bl.childAtRules[0].childAtRules))
	}
	if got, want := len(bl.childAtRules[0].declarations), 1; got != want {
		t.Errorf("len(@page declarations) = %d, want %d", got, want)
	}
}

func TestStylesheetSelectors(t *testing.T) {
	str := `.lead { font-weight: bold }
	article   p > a:hover { color: red; }
	@media print {
		#main .note { display: none }
	}
	@import url("x.css");`

	sheet := ParseStylesheet(str)
	got := sheet.Selectors()
	want := []string{".lead", "article p > a:hover", "#main .note"}
	if !slices.Equal(got, want) {
		t.Errorf("Selectors() = %q, want %q", got, want)
	}
	if got, want := sheet.RuleCount(), 3; got != want {
		t.Errorf("RuleCount() = %d, want %d", got, want)
	}
	if got, want := sheet.AtRules(), []string{"@media"}; !slices.Equal(got, want) {
		t.Errorf("AtRules() = %q, want %q", got, want)
	}
}

func TestStylesheetOutline(t *testing.T) {
	sheet := ParseStylesheet(`@media screen { p { color: red } } .x { margin: 0; padding: 1px }`)
	out := sheet.String()
	for _, want := range []string{"@media screen {", "    p {", ".x {", "    margin: 0;", "    padding: 1px;"} {
		if !strings.Contains(out, want) {
			t.Errorf("outline %q does not contain %q", out, want)
		}
	}
}

func TestStylesheetMalformed(t *testing.T) {
	for _, str := range []string{
		"",
		"}",
		"{",
		"p { color: red",
		"p { color: }",
		": ; ;",
		"@media {",
		"a { b { c { } }",
	} {
		sheet := ParseStylesheet(str)
		_ = sheet.String()
		_ = sheet.Selectors()
	}
}
