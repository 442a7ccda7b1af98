package render

import (
	"fmt"
	"html/template"
	"io"

	"github.com/starford/orgview/internal/linkres"
	"github.com/starford/orgview/internal/models"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<article data-path="{{.Path}}">
<h1>{{.Title}}</h1>
{{.Body}}
</article>
{{- if .Backlinks}}
<aside class="backlinks">
<h2>Backlinks</h2>
<ul>
{{- range .Backlinks}}
<li><a class="wikilink" href="{{.Href}}">{{.Label}}</a></li>
{{- end}}
</ul>
</aside>
{{- end}}
</body>
</html>
`))

type pageLink struct {
	Href  template.URL
	Label string
}

type pageData struct {
	Path      string
	Title     string
	Body      template.HTML
	Backlinks []pageLink
}

// WritePage renders doc as a standalone HTML page with its backlinks.
func (r *Renderer) WritePage(w io.Writer, doc *models.Document) error {
	view := linkres.Prepare(doc)
	body, err := r.Render(view.Body)
	if err != nil {
		return err
	}

	data := pageData{Path: view.Path, Title: view.Title, Body: template.HTML(body)}
	if data.Title == "" {
		data.Title = view.Path
	}
	for _, bl := range view.Backlinks {
		data.Backlinks = append(data.Backlinks, pageLink{
			Href:  template.URL(linkres.Href(bl.Target)),
			Label: bl.Alias,
		})
	}
	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render: page: %w", err)
	}
	return nil
}
