package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxesandglue/restyle"
	"github.com/boxesandglue/restyle/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFormatOf(t *testing.T) {
	t.Parallel()

	tcs := map[string]store.Format{
		"config.yaml":  store.FormatYAML,
		"config.yml":   store.FormatYAML,
		"config.json":  store.FormatJSONC,
		"config.JSONC": store.FormatJSONC,
		"config":       store.FormatYAML,
	}

	for path, want := range tcs {
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, want, store.FormatOf(path))
		})
	}
}

func TestFile_Get(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		filename  string
		content   string
		namespace string
		want      restyle.Config
	}{
		"missing file": {
			filename: "config.yaml",
			want:     restyle.Config{},
		},
		"empty file": {
			filename: "config.yaml",
			content:  "\n",
			want:     restyle.Config{},
		},
		"yaml": {
			filename: "config.yaml",
			content: `local:
  allowedDomains: [example.com]
  rules:
    - selector: p
      addClass: big
  customCSS: ".big { font-size: 2em }"
other:
  customCSS: "ignored"
`,
			want: restyle.Config{
				AllowedDomains: []string{"example.com"},
				Rules:          restyle.RuleSet{{Selector: "p", AddClass: "big"}},
				CustomCSS:      ".big { font-size: 2em }",
			},
		},
		"jsonc with comments": {
			filename: "config.jsonc",
			content: `{
  // namespace for the demo site
  "demo": {
    "rules": [{"selector": "h1", "addClass": "title"}],
    "allowedDomains": ["demo.test"] /* block comment */
  }
}`,
			namespace: "demo",
			want: restyle.Config{
				Rules:          restyle.RuleSet{{Selector: "h1", AddClass: "title"}},
				AllowedDomains: []string{"demo.test"},
			},
		},
		"unknown namespace": {
			filename:  "config.yaml",
			content:   "local:\n  customCSS: x\n",
			namespace: "nope",
			want:      restyle.Config{},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), tc.filename)
			if tc.content != "" {
				writeFile(t, path, tc.content)
			}

			f, err := store.NewFile(path, tc.namespace)
			require.NoError(t, err)
			t.Cleanup(func() { _ = f.Close() })

			got, err := f.Get(t.Context())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFile_GetInvalid(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		content  string
		wantPath string
	}{
		"empty class": {
			content: `local:
  rules:
    - selector: p
      addClass: ""
`,
			wantPath: "$.local.rules[0].addClass",
		},
		"class with space": {
			content: `local:
  rules:
    - selector: p
      addClass: "a b"
`,
			wantPath: "$.local.rules[0].addClass",
		},
		"domains not a list": {
			content:  "local:\n  allowedDomains: example.com\n",
			wantPath: "$.local.allowedDomains",
		},
		"unknown key": {
			content:  "local:\n  colour: red\n",
			wantPath: "$.local",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tc.content)

			f, err := store.NewFile(path, "")
			require.NoError(t, err)

			_, err = f.Get(t.Context())
			require.Error(t, err)

			var verr *store.ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotNil(t, verr.Path)
			assert.Equal(t, tc.wantPath, verr.Path.String())

			annotated, err := verr.Path.AnnotateSource([]byte(tc.content), false)
			require.NoError(t, err)
			assert.NotEmpty(t, annotated)
		})
	}
}

func TestFile_SetRoundTrip(t *testing.T) {
	t.Parallel()

	for _, filename := range []string{"config.yaml", "config.json"} {
		t.Run(filename, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			path := filepath.Join(t.TempDir(), "nested", filename)
			f, err := store.NewFile(path, "site")
			require.NoError(t, err)

			rules := restyle.RuleSet{{Selector: "div > p", AddClass: "x"}}
			require.NoError(t, f.Set(ctx, restyle.Patch{
				Rules:     &rules,
				CustomCSS: ptr("p > a { color: red }"),
			}))

			reopened, err := store.NewFile(path, "site")
			require.NoError(t, err)
			got, err := reopened.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, rules, got.Rules)
			assert.Equal(t, "p > a { color: red }", got.CustomCSS)

			names, err := reopened.Namespaces()
			require.NoError(t, err)
			assert.Equal(t, []string{"site"}, names)

			// No temp files are left behind.
			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestFile_SetKeepsOtherNamespaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "other:\n  customCSS: keep\n")

	f, err := store.NewFile(path, "local")
	require.NoError(t, err)
	require.NoError(t, f.Set(t.Context(), restyle.Patch{CustomCSS: ptr("mine")}))

	other, err := store.NewFile(path, "other")
	require.NoError(t, err)
	got, err := other.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "keep", got.CustomCSS)
}

func TestFile_SubscribeSet(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	path := filepath.Join(t.TempDir(), "config.yaml")
	f, err := store.NewFile(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	changes, err := f.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Set(ctx, restyle.Patch{AllowedDomains: &[]string{"a.test"}}))
	cs := receive(t, changes)
	require.NotNil(t, cs.AllowedDomains)
	assert.Equal(t, []string{"a.test"}, cs.AllowedDomains.NewValue)
	assert.Equal(t, []string{restyle.KeyAllowedDomains}, cs.Keys())

	// The watcher sees the write too, but it carries no new changes.
	assertQuiet(t, changes)
}

func TestFile_SubscribeExternalWrite(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "local:\n  customCSS: before\n")

	f, err := store.NewFile(path, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	changes, err := f.Subscribe(ctx)
	require.NoError(t, err)

	// A write to a sibling file is ignored.
	writeFile(t, filepath.Join(dir, "unrelated.yaml"), "x: 1\n")

	writeFile(t, path, "local:\n  customCSS: after\n")
	cs := receive(t, changes)
	require.NotNil(t, cs.CustomCSS)
	assert.Equal(t, "before", cs.CustomCSS.OldValue)
	assert.Equal(t, "after", cs.CustomCSS.NewValue)
	assert.Nil(t, cs.Rules)
}

func TestFile_CloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	f, err := store.NewFile(filepath.Join(t.TempDir(), "config.yaml"), "")
	require.NoError(t, err)

	changes, err := f.Subscribe(t.Context())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, ok := <-changes
	assert.False(t, ok)
}
