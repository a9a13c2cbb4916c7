package restyle

import "testing"

func TestDetermineEmptyList(t *testing.T) {
	for _, host := range []string{"", "example.com", "localhost", "a.b.c"} {
		if Determine(host, nil) {
			t.Errorf("Determine(%q, nil) = true, want false", host)
		}
		if Determine(host, []string{}) {
			t.Errorf("Determine(%q, []) = true, want false", host)
		}
	}
}

func TestDetermineSubstring(t *testing.T) {
	testdata := []struct {
		host   string
		domain string
		want   bool
	}{
		{"shop.example.com", "example.com", true},
		{"example.com", "example.com", true},
		{"notexample.com", "example.com", true},
		{"example.org", "example.com", false},
		{"localhost", "local", true},
		{"anything", "", true},
		{"EXAMPLE.com", "example.com", false},
	}
	for _, td := range testdata {
		if got := Determine(td.host, []string{td.domain}); got != td.want {
			t.Errorf("Determine(%q, [%q]) = %t, want %t", td.host, td.domain, got, td.want)
		}
	}
}

func TestMatchingEntry(t *testing.T) {
	entry, ok := MatchingEntry("shop.example.com", []string{"test.org", "example", "shop"})
	if !ok {
		t.Fatal("MatchingEntry() did not match")
	}
	if want := "example"; entry != want {
		t.Errorf("MatchingEntry() = %q, want %q", entry, want)
	}
	if _, ok := MatchingEntry("test.com", []string{"example.com"}); ok {
		t.Error("MatchingEntry(test.com) matched")
	}
}
