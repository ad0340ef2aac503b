package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Integrity(t *testing.T) {
	list := List()
	require.Len(t, list, 40)

	for _, tool := range list {
		t.Run(tool.Name, func(t *testing.T) {
			assert.NotEmpty(t, tool.Title)
			assert.NotEmpty(t, tool.Path)
			assert.NotEmpty(t, tool.OutputExt)
			assert.Contains(t, []Engine{EngineStirling, EngineGotenberg}, tool.Engine)
			assert.LessOrEqual(t, tool.MinFiles, tool.MaxFiles)

			seen := map[string]bool{}
			for _, p := range tool.Params {
				assert.False(t, seen[p.Name], "duplicate param %s", p.Name)
				seen[p.Name] = true
				assert.NotEmpty(t, p.Field)
				assert.False(t, p.Required && p.Default != "", "required param %s has a default", p.Name)
			}

			// defaults must round-trip through their own rule
			params := map[string]any{}
			for _, p := range tool.Params {
				if p.Default != "" {
					params[p.Name] = p.Default
				}
			}
			for _, p := range tool.Params {
				if p.Required {
					params[p.Name] = sampleValue(p)
				}
			}
			_, err := tool.BuildFields(params)
			assert.NoError(t, err)
		})
	}
}

func sampleValue(p Param) any {
	switch p.Kind {
	case KindInt:
		return float64(1)
	case KindFloat:
		return float64(10)
	case KindBool:
		return true
	case KindURL:
		return "https://example.com"
	}
	return "1-3"
}

func TestList_SortedByCategoryThenName(t *testing.T) {
	list := List()
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		if prev.Category == cur.Category {
			assert.Less(t, prev.Name, cur.Name)
		} else {
			assert.Less(t, prev.Category, cur.Category)
		}
	}
}

func TestLookup(t *testing.T) {
	tool, err := Lookup("rotate")
	require.NoError(t, err)
	assert.Equal(t, EngineStirling, tool.Engine)
	assert.Equal(t, "/api/v1/general/rotate-pdf", tool.Path)
	assert.Equal(t, "fileInput", tool.FileField)

	tool, err = Lookup("html-to-pdf")
	require.NoError(t, err)
	assert.Equal(t, EngineGotenberg, tool.Engine)
	assert.Equal(t, "files", tool.FileField)
	assert.Equal(t, "index.html", tool.FileName)

	_, err = Lookup("defragment")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestTool_BuildFields(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		params     map[string]any
		wantFields map[string]string
		wantErr    error
		errString  string
	}{
		{
			name:       "defaults applied",
			tool:       "rotate",
			params:     nil,
			wantFields: map[string]string{"angle": "90"},
		},
		{
			name:       "json number converted",
			tool:       "rotate",
			params:     map[string]any{"angle": float64(180)},
			wantFields: map[string]string{"angle": "180"},
		},
		{
			name:      "rule violation",
			tool:      "rotate",
			params:    map[string]any{"angle": float64(45)},
			wantErr:   ErrInvalidParams,
			errString: "angle",
		},
		{
			name:      "fractional integer",
			tool:      "rotate",
			params:    map[string]any{"angle": 90.5},
			wantErr:   ErrInvalidParams,
			errString: "expected an integer",
		},
		{
			name:      "unknown params listed",
			tool:      "rotate",
			params:    map[string]any{"zoom": 2, "angle": float64(90), "blur": true},
			wantErr:   ErrInvalidParams,
			errString: "unknown params blur, zoom",
		},
		{
			name:      "missing required",
			tool:      "watermark",
			params:    map[string]any{},
			wantErr:   ErrInvalidParams,
			errString: "text is required",
		},
		{
			name:   "static fields and mapping",
			tool:   "watermark",
			params: map[string]any{"text": "CONFIDENTIAL", "opacity": 0.25, "convert_to_image": true},
			wantFields: map[string]string{
				"watermarkType":     "text",
				"watermarkText":     "CONFIDENTIAL",
				"fontSize":          "30",
				"rotation":          "45",
				"opacity":           "0.25",
				"widthSpacer":       "50",
				"heightSpacer":      "50",
				"customColor":       "#d3d3d3",
				"convertPDFToImage": "true",
			},
		},
		{
			name:      "float out of range",
			tool:      "watermark",
			params:    map[string]any{"text": "x", "opacity": 1.5},
			wantErr:   ErrInvalidParams,
			errString: "opacity",
		},
		{
			name:      "wrong type",
			tool:      "metadata",
			params:    map[string]any{"title": 12.0},
			wantErr:   ErrInvalidParams,
			errString: "expected string",
		},
		{
			name:       "string numbers accepted",
			tool:       "compress",
			params:     map[string]any{"level": "9"},
			wantFields: map[string]string{"optimizeLevel": "9"},
		},
		{
			name:      "invalid url",
			tool:      "url-to-pdf",
			params:    map[string]any{"url": "not a url"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:      "file scheme",
			tool:      "url-to-pdf",
			params:    map[string]any{"url": "file:///etc/passwd"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:      "gopher scheme",
			tool:      "screenshot",
			params:    map[string]any{"url": "gopher://localhost:6379/_x"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:      "cloud metadata address",
			tool:      "url-to-pdf",
			params:    map[string]any{"url": "http://169.254.169.254/latest/meta-data/"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:      "loopback",
			tool:      "screenshot",
			params:    map[string]any{"url": "http://127.0.0.1:3000/health"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:      "private network",
			tool:      "url-to-pdf",
			params:    map[string]any{"url": "https://10.0.0.1/admin"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:      "decimal ipv4 host",
			tool:      "url-to-pdf",
			params:    map[string]any{"url": "http://2130706433/"},
			wantErr:   ErrInvalidParams,
			errString: "url",
		},
		{
			name:       "public https url",
			tool:       "screenshot",
			params:     map[string]any{"url": "https://example.com/pricing"},
			wantFields: map[string]string{"url": "https://example.com/pricing", "format": "png", "width": "1280", "height": "800"},
		},
		{
			name:       "merge flag for office merge",
			tool:       "office-merge",
			params:     map[string]any{"landscape": "true"},
			wantFields: map[string]string{"merge": "true", "landscape": "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, err := Lookup(tt.tool)
			require.NoError(t, err)

			fields, err := tool.BuildFields(tt.params)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.errString)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestTool_CheckInputs(t *testing.T) {
	tests := []struct {
		tool    string
		n       int
		wantErr bool
	}{
		{tool: "rotate", n: 1},
		{tool: "rotate", n: 0, wantErr: true},
		{tool: "rotate", n: 2, wantErr: true},
		{tool: "merge", n: 1, wantErr: true},
		{tool: "merge", n: 2},
		{tool: "merge", n: 20},
		{tool: "merge", n: 21, wantErr: true},
		{tool: "url-to-pdf", n: 0},
		{tool: "url-to-pdf", n: 1, wantErr: true},
		{tool: "image-to-pdf", n: 50},
	}

	for _, tt := range tests {
		tool, err := Lookup(tt.tool)
		require.NoError(t, err)

		err = tool.CheckInputs(tt.n)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidInputCount, "%s with %d inputs", tt.tool, tt.n)
		} else {
			assert.NoError(t, err, "%s with %d inputs", tt.tool, tt.n)
		}
	}
}
