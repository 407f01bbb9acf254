package catalog

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleDefinitions = `
[steps]
GR:Grain=im-grain-tool -o %s -g %s
EXIF:ExifTransfer=exiftool -TagsFromFile %s %s

[workflows]
MyWorkflow:SE,GR,OS

[papers]
A4:210
`

func TestParseSampleDefinitions(t *testing.T) {
	l := NewLoader(zap.NewNop())

	cat, err := l.Parse(strings.NewReader(sampleDefinitions))
	require.NoError(t, err)

	steps := cat.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, StepTemplate{Code: "GR", Display: "Grain", Template: "im-grain-tool -o %s -g %s"}, steps[0])
	assert.Equal(t, StepTemplate{Code: "EXIF", Display: "ExifTransfer", Template: "exiftool -TagsFromFile %s %s"}, steps[1])

	workflows := cat.Workflows()
	require.Len(t, workflows, 1)
	assert.Equal(t, "MyWorkflow", workflows[0].Name)
	assert.Equal(t, []string{"SE", "GR", "OS"}, workflows[0].Steps)

	papers := cat.Papers()
	require.Len(t, papers, 1)
	assert.Equal(t, PaperProfile{Name: "A4", WidthMM: 210}, papers[0])
}

func TestParseTrimsFields(t *testing.T) {
	l := NewLoader(zap.NewNop())

	input := "[Steps]\n  SE : Sharpen Export = sharpen %s  \n[Workflows]\n  Quick : SE , GR \n[Papers]\n  A3 : 297 \n"
	cat, err := l.Parse(strings.NewReader(input))
	require.NoError(t, err)

	step, ok := cat.Step("SE")
	require.True(t, ok)
	assert.Equal(t, "Sharpen Export", step.Display)
	assert.Equal(t, "sharpen %s", step.Template)

	wf, ok := cat.Workflow("Quick")
	require.True(t, ok)
	assert.Equal(t, []string{"SE", "GR"}, wf.Steps)

	paper, ok := cat.Paper("A3")
	require.True(t, ok)
	assert.Equal(t, 297.0, paper.WidthMM)
}

func TestParseEdgeCases(t *testing.T) {
	tcs := map[string]struct {
		input string
		check func(t *testing.T, cat *Catalog, err error)
	}{
		"no section markers": {
			input: "GR:Grain=grain %s\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
				assert.Empty(t, cat.Steps())
			},
		},
		"case insensitive headers": {
			input: "[STEPS]\nA:One=a %s\n[WorkFlows]\nW:A\n[PAPERS]\nP:100\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				assert.Len(t, cat.Steps(), 1)
				assert.Len(t, cat.Workflows(), 1)
				assert.Len(t, cat.Papers(), 1)
			},
		},
		"short lines skipped": {
			input: "[steps]\nab\nA:One=a %s\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				assert.Len(t, cat.Steps(), 1)
			},
		},
		"data before any section ignored": {
			input: "X:Y=z\n[steps]\nA:One=a %s\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				require.Len(t, cat.Steps(), 1)
				_, ok := cat.Step("X")
				assert.False(t, ok)
			},
		},
		"unknown section suspends parsing": {
			input: "[steps]\nA:One=a %s\n[extras]\nB:Two=b %s\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				assert.Len(t, cat.Steps(), 1)
			},
		},
		"missing delimiter skipped": {
			input: "[steps]\nNODELIM\nA:One=a %s\n[papers]\nNOCOLON\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				assert.Len(t, cat.Steps(), 1)
				assert.Empty(t, cat.Papers())
			},
		},
		"bad paper width skipped": {
			input: "[papers]\nA4:abc\nA3:297\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				require.Len(t, cat.Papers(), 1)
				assert.Equal(t, "A3", cat.Papers()[0].Name)
			},
		},
		"workflow limit enforced": {
			input: "[workflows]\nW1:A\nW2:A\nW3:A\nW4:A\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				require.Len(t, cat.Workflows(), 3)
				_, ok := cat.Workflow("W4")
				assert.False(t, ok)
			},
		},
		"duplicate step keeps position, last wins": {
			input: "[steps]\nA:First=one %s\nB:Mid=mid %s\nA:Second=two %s\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				steps := cat.Steps()
				require.Len(t, steps, 2)
				assert.Equal(t, "Second", steps[0].Display)
				assert.Equal(t, "B", steps[1].Code)
			},
		},
		"empty codes dropped from workflow list": {
			input: "[workflows]\nW: A,, B ,\n",
			check: func(t *testing.T, cat *Catalog, err error) {
				require.NoError(t, err)
				wf, ok := cat.Workflow("W")
				require.True(t, ok)
				assert.Equal(t, []string{"A", "B"}, wf.Steps)
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			cat, err := NewLoader(zap.NewNop()).Parse(strings.NewReader(tc.input))
			require.NotNil(t, cat)
			tc.check(t, cat, err)
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	l := NewLoader(zap.NewNop())

	first, err := l.Parse(strings.NewReader(sampleDefinitions))
	require.NoError(t, err)
	second, err := l.Parse(strings.NewReader(sampleDefinitions))
	require.NoError(t, err)

	assert.Equal(t, first.Steps(), second.Steps())
	assert.Equal(t, first.Workflows(), second.Workflows())
	assert.Equal(t, first.Papers(), second.Papers())
}

func TestLoadMissingFile(t *testing.T) {
	l := NewLoader(zap.NewNop())

	cat, err := l.Load(filepath.Join(t.TempDir(), "missing.txt"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.NotNil(t, cat)
	assert.Empty(t, cat.Steps())
	assert.Empty(t, cat.Workflows())
	assert.Empty(t, cat.Papers())
}
