package visualize

import (
	"fmt"
	"html/template"
	"strings"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>dbdiag knowledge graph</title>
  <script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
  <style>
    body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 0; padding: 24px; background: #fafafa; color: #1a1a1a; }
    h1 { font-size: 1.2rem; margin: 0 0 16px; }
    .mermaid {
      text-align: center;
      margin: 16px 0;
      padding: 16px;
      background: #fff;
      border-radius: 8px;
      border: 1px solid #ddd;
      overflow: auto;
    }
    .legend { font-size: 0.85rem; color: #555; margin-top: 16px; }
  </style>
</head>
<body>
  <h1>dbdiag knowledge graph &mdash; {{.PhenomenonCount}} phenomena, {{.RootCauseCount}} root causes</h1>
  <div class="mermaid">
{{.Diagram}}
  </div>
  <p class="legend">P_* nodes are phenomena, R_* nodes are root causes; edge labels are the ticket count backing each association.</p>
  <script>
    mermaid.initialize({ startOnLoad: true, theme: "default", securityLevel: "loose", maxEdges: 4000, flowchart: { htmlLabels: true } });
  </script>
</body>
</html>
`

var page = template.Must(template.New("visualize").Parse(pageTemplate))

type pageData struct {
	Diagram         template.HTML
	PhenomenonCount int
	RootCauseCount  int
}

// RenderPage wraps a mermaid diagram string in a minimal standalone HTML
// page that loads mermaid.js from its CDN and renders on load. The diagram
// text is emitted verbatim (not HTML-escaped): diagrams.escapeMermaid
// already neutralizes any unsafe characters in node labels before this
// point, and escaping mermaid's own "-->" syntax here would corrupt it.
func RenderPage(diagram string, phenomenonCount, rootCauseCount int) (string, error) {
	var b strings.Builder
	if err := page.Execute(&b, pageData{
		Diagram:         template.HTML(diagram),
		PhenomenonCount: phenomenonCount,
		RootCauseCount:  rootCauseCount,
	}); err != nil {
		return "", fmt.Errorf("rendering visualize page: %w", err)
	}
	return b.String(), nil
}
