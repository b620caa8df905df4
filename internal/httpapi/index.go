package httpapi

import (
	"html/template"
	"net/http"
)

const indexHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Annotated Documents</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --muted: #6f7d7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background: var(--paper);
      min-height: 100vh;
      padding: 24px;
    }
    .shell { max-width: 760px; margin: 0 auto; }
    h1 { font-size: 1.3rem; margin-bottom: 4px; }
    p.sub { color: var(--muted); margin-top: 0; }
    ul.docs { list-style: none; padding: 0; }
    ul.docs li {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 8px;
      padding: 12px 16px;
      margin-bottom: 8px;
      display: flex;
      justify-content: space-between;
    }
    ul.docs a { color: var(--accent); text-decoration: none; font-weight: 600; }
    .empty { color: var(--muted); font-style: italic; }
  </style>
</head>
<body>
  <div class="shell">
    <h1>Annotated documents</h1>
    <p class="sub">Documents in the archive that carry annotations.</p>
    {{if .Documents}}
    <ul class="docs">
      {{range .Documents}}
      <li>
        <a href="/api/documents/{{.ID}}/download">{{.Title}}</a>
        <span>#{{.ID}}</span>
      </li>
      {{end}}
    </ul>
    {{else}}
    <p class="empty">No annotated documents yet.</p>
    {{end}}
  </div>
</body>
</html>`

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type indexDocument struct {
	ID    int64
	Title string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	docs, err := s.annotator.DocumentsWithAnnotations(r.Context(), nil)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	view := struct{ Documents []indexDocument }{}
	for _, doc := range docs {
		view.Documents = append(view.Documents, indexDocument{ID: doc.ID, Title: doc.Title})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, view); err != nil {
		s.logger.Error().Err(err).Msg("index render failed")
	}
}
