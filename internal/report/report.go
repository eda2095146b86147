// Package report renders batch outcomes for people and tools.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/olehluchkiv/enhancer/internal/batch"
	"github.com/olehluchkiv/enhancer/internal/enhancer"
	"github.com/olehluchkiv/enhancer/internal/instrument"
)

// Write renders rep in format "text", "yaml" or "mermaid".
func Write(w io.Writer, rep *batch.Report, format string) error {
	switch format {
	case "", "text":
		return Text(w, rep)
	case "yaml":
		return YAML(w, rep)
	case "mermaid":
		_, err := io.WriteString(w, Mermaid(rep, DefaultDiagramOptions())+"\n")
		return err
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Text writes a one-line-per-class table followed by a summary.
func Text(w io.Writer, rep *batch.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tSTATUS\tDETAIL")
	for _, res := range rep.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Class, res.Status, detail(res))
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(tw, "%s\tfailed\t%s\n", f.Class, f.Code)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d enhanced, %d skipped, %d failed (run %s, %s)\n",
		rep.Count(enhancer.StatusEnhanced), rep.Count(enhancer.StatusSkipped), len(rep.Failures),
		rep.RunID, rep.Finished.Sub(rep.Started).Round(1e6))
	if err != nil {
		return err
	}
	for _, f := range rep.Failures {
		if _, err := fmt.Fprintf(w, "  %s: %s\n", f.Class, f.Message); err != nil {
			return err
		}
	}
	return nil
}

func detail(res *enhancer.Result) string {
	if res.Status == enhancer.StatusSkipped {
		if res.Detail != "" {
			return fmt.Sprintf("%s (%s)", res.Reason, res.Detail)
		}
		return string(res.Reason)
	}
	return fmt.Sprintf("%d setters, %d accessors",
		res.Count(instrument.SetterWrapped), res.Count(instrument.AccessorRestricted))
}

// YAML writes the full report.
func YAML(w io.Writer, rep *batch.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return enc.Close()
}

// DiagramOptions controls Mermaid diagram generation.
type DiagramOptions struct {
	MaxPropertiesPerBox int  // 0 means unlimited
	IncludeInit         bool // include %%{init:}%% directive (for standalone .mmd files)
}

func DefaultDiagramOptions() DiagramOptions {
	return DiagramOptions{MaxPropertiesPerBox: 8}
}

// Mermaid produces a classDiagram of the enhanced entities: each box lists
// the tracked properties, and an edge points to the direct superclass.
func Mermaid(rep *batch.Report, opts DiagramOptions) string {
	var entities []*enhancer.Result
	for _, res := range rep.Results {
		if res.Status == enhancer.StatusEnhanced {
			entities = append(entities, res)
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Class < entities[j].Class })

	var b strings.Builder
	if opts.IncludeInit {
		b.WriteString("%%{init: {'theme': 'base', 'themeVariables': {'primaryColor': '#ffffff', 'primaryBorderColor': '#cccccc', 'primaryTextColor': '#000000', 'lineColor': '#555555'}}%%\n")
	}
	b.WriteString("classDiagram")
	if len(entities) == 0 {
		return b.String()
	}
	b.WriteString("\n    direction BT\n")
	b.WriteString("    classDef entityStyle fill:#4a9c6d,stroke:#357a50,color:#fff,stroke-width:2px\n")
	b.WriteString("    classDef baseStyle fill:#2374ab,stroke:#1a5a8a,color:#fff,stroke-width:2px,font-weight:bold")

	enhanced := make(map[string]bool, len(entities))
	for _, e := range entities {
		enhanced[e.Class] = true
	}
	supers := make(map[string]bool)
	for _, e := range entities {
		b.WriteString("\n")
		writeEntityBlock(&b, e, opts)
		if len(e.Chain) > 0 && !enhanced[e.Chain[0]] {
			supers[e.Chain[0]] = true
		}
	}
	for _, name := range sortedKeys(supers) {
		b.WriteString("\n")
		fmt.Fprintf(&b, "    class %s[\"%s\"]", NodeID(name), simpleName(name))
	}

	b.WriteString("\n")
	for _, e := range entities {
		if len(e.Chain) > 0 {
			fmt.Fprintf(&b, "\n    %s --|> %s", NodeID(e.Class), NodeID(e.Chain[0]))
		}
	}

	b.WriteString("\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "\n    cssClass \"%s\" entityStyle", NodeID(e.Class))
	}
	for _, name := range sortedKeys(supers) {
		fmt.Fprintf(&b, "\n    cssClass \"%s\" baseStyle", NodeID(name))
	}
	return b.String()
}

func writeEntityBlock(b *strings.Builder, e *enhancer.Result, opts DiagramOptions) {
	fmt.Fprintf(b, "    class %s[\"%s\"] {\n", NodeID(e.Class), simpleName(e.Class))
	var props []string
	for _, ed := range e.Edits {
		if ed.Kind == instrument.SetterWrapped {
			props = append(props, ed.Field)
		}
	}
	sort.Strings(props)
	limit := len(props)
	if opts.MaxPropertiesPerBox > 0 && limit > opts.MaxPropertiesPerBox {
		limit = opts.MaxPropertiesPerBox
	}
	for _, p := range props[:limit] {
		fmt.Fprintf(b, "        +%s\n", p)
	}
	if limit < len(props) {
		b.WriteString("        ...\n")
	}
	b.WriteString("    }")
}

// NodeID turns a dotted class name into a Mermaid identifier.
func NodeID(name string) string {
	return strings.NewReplacer(".", "_", "$", "_", "-", "_", "/", "_").Replace(name)
}

func simpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
