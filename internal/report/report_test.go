package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/olehluchkiv/enhancer/internal/analyzer"
	"github.com/olehluchkiv/enhancer/internal/batch"
	"github.com/olehluchkiv/enhancer/internal/enhancer"
	"github.com/olehluchkiv/enhancer/internal/instrument"
)

const base = "com.haulmont.chile.core.model.impl.AbstractInstance"

func sampleReport() *batch.Report {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &batch.Report{
		RunID:    "run-1",
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Results: []*enhancer.Result{
			{
				Class:  "com.example.Order",
				Status: enhancer.StatusEnhanced,
				Chain:  []string{"com.example.BaseEntity", base},
				Edits: []instrument.Edit{
					{Kind: instrument.SetterWrapped, Method: "setStatus", Field: "status"},
					{Kind: instrument.SetterWrapped, Method: "setAmount", Field: "amount"},
					{Kind: instrument.AccessorRestricted, Method: "_persistence_get_status"},
				},
			},
			{
				Class:  "com.example.BaseEntity",
				Status: enhancer.StatusEnhanced,
				Chain:  []string{base},
			},
			{
				Class:  "com.example.Strings",
				Status: enhancer.StatusSkipped,
				Reason: analyzer.ReasonNotEntity,
			},
			{
				Class:  "com.example.Frozen",
				Status: enhancer.StatusSkipped,
				Reason: analyzer.ReasonDisabled,
				Detail: "com.haulmont.cuba.core.sys.CubaEnhancingDisabled",
			},
		},
		Failures: []batch.Failure{
			{Class: "com.example.Widget", Code: enhancer.UnsupportedPrimitiveSetter, Message: "Use type Integer."},
		},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), "text"))
	out := buf.String()

	assert.Contains(t, out, "CLASS")
	assert.Regexp(t, `com\.example\.Order\s+enhanced\s+2 setters, 1 accessors`, out)
	assert.Regexp(t, `com\.example\.Strings\s+skipped\s+not-entity\n`, out)
	assert.Contains(t, out, "enhancing-disabled (com.haulmont.cuba.core.sys.CubaEnhancingDisabled)")
	assert.Regexp(t, `com\.example\.Widget\s+failed\s+UNSUPPORTED_PRIMITIVE_SETTER`, out)
	assert.Contains(t, out, "2 enhanced, 2 skipped, 1 failed (run run-1, 1.5s)")
	assert.Contains(t, out, "  com.example.Widget: Use type Integer.")
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), "yaml"))

	var decoded struct {
		RunID   string `yaml:"run_id"`
		Results []struct {
			Class  string `yaml:"class"`
			Status string `yaml:"status"`
			Edits  []struct {
				Kind string `yaml:"kind"`
			} `yaml:"edits"`
		} `yaml:"results"`
		Failures []struct {
			Code string `yaml:"code"`
		} `yaml:"failures"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Results, 4)
	assert.Equal(t, "enhanced", decoded.Results[0].Status)
	assert.Equal(t, "setter-wrapped", decoded.Results[0].Edits[0].Kind)
	assert.Equal(t, "UNSUPPORTED_PRIMITIVE_SETTER", decoded.Failures[0].Code)
}

func TestMermaid(t *testing.T) {
	got := Mermaid(sampleReport(), DefaultDiagramOptions())
	want := strings.Join([]string{
		"classDiagram",
		"    direction BT",
		"    classDef entityStyle fill:#4a9c6d,stroke:#357a50,color:#fff,stroke-width:2px",
		"    classDef baseStyle fill:#2374ab,stroke:#1a5a8a,color:#fff,stroke-width:2px,font-weight:bold",
		"    class com_example_BaseEntity[\"BaseEntity\"] {",
		"    }",
		"    class com_example_Order[\"Order\"] {",
		"        +amount",
		"        +status",
		"    }",
		"    class com_haulmont_chile_core_model_impl_AbstractInstance[\"AbstractInstance\"]",
		"",
		"    com_example_BaseEntity --|> com_haulmont_chile_core_model_impl_AbstractInstance",
		"    com_example_Order --|> com_example_BaseEntity",
		"",
		"    cssClass \"com_example_BaseEntity\" entityStyle",
		"    cssClass \"com_example_Order\" entityStyle",
		"    cssClass \"com_haulmont_chile_core_model_impl_AbstractInstance\" baseStyle",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestMermaidTruncatesAndInit(t *testing.T) {
	rep := sampleReport()
	got := Mermaid(rep, DiagramOptions{MaxPropertiesPerBox: 1, IncludeInit: true})
	assert.True(t, strings.HasPrefix(got, "%%{init:"))
	assert.Contains(t, got, "        +amount\n        ...\n")
	assert.NotContains(t, got, "+status")
}

func TestMermaidEmpty(t *testing.T) {
	assert.Equal(t, "classDiagram", Mermaid(&batch.Report{}, DefaultDiagramOptions()))
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sampleReport(), "html"))
}
