package inode

import "testing"

func TestIsValidSegment(t *testing.T) {
	valid := []string{"a", "foo.txt", "日本語", "a b"}
	invalid := []string{"", ".", "..", "a/b", "a\x00b"}

	for _, n := range valid {
		if !IsValidSegment(n) {
			t.Errorf("expected %q to be valid", n)
		}
	}
	for _, n := range invalid {
		if IsValidSegment(n) {
			t.Errorf("expected %q to be invalid", n)
		}
	}
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		prefix, key string
		wantParts   []string
		wantDir     bool
		wantOK      bool
	}{
		{"dir/", "dir/file.txt", []string{"file.txt"}, false, true},
		{"dir/", "dir/sub/", []string{"sub"}, true, true},
		{"dir/", "dir/", nil, true, true},
		{"dir/", "other/file.txt", nil, false, false},
		{"", "a/../b", nil, false, false},
	}

	for _, c := range cases {
		parts, isDir, ok := ParseKey(c.prefix, c.key)
		if ok != c.wantOK {
			t.Fatalf("ParseKey(%q, %q) ok=%v, want %v", c.prefix, c.key, ok, c.wantOK)
		}
		if !ok {
			continue
		}
		if isDir != c.wantDir {
			t.Errorf("ParseKey(%q, %q) isDir=%v, want %v", c.prefix, c.key, isDir, c.wantDir)
		}
		if len(parts) != len(c.wantParts) {
			t.Fatalf("ParseKey(%q, %q) parts=%v, want %v", c.prefix, c.key, parts, c.wantParts)
		}
		for i := range parts {
			if parts[i] != c.wantParts[i] {
				t.Errorf("ParseKey(%q, %q) parts[%d]=%q, want %q", c.prefix, c.key, i, parts[i], c.wantParts[i])
			}
		}
	}
}

func TestStripConflictSuffix(t *testing.T) {
	name, had := StripConflictSuffix("foo" + ConflictingFileNameSuffix)
	if !had || name != "foo" {
		t.Errorf("got (%q, %v), want (\"foo\", true)", name, had)
	}
	name, had = StripConflictSuffix("foo")
	if had || name != "foo" {
		t.Errorf("got (%q, %v), want (\"foo\", false)", name, had)
	}
}
