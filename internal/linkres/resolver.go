package linkres

import "github.com/starford/orgview/internal/models"

// View is what the presentation layer needs to display one document.
type View struct {
	Path      string
	Title     string
	Body      string // rewritten for display
	Links     []models.LinkRef
	Backlinks []models.LinkRef
}

// Prepare builds the display view of doc. It runs on every successful load.
func Prepare(doc *models.Document) View {
	return View{
		Path:      doc.Path,
		Title:     doc.Title,
		Body:      RewriteForDisplay(doc.Content),
		Links:     ExtractLinks(doc.Content),
		Backlinks: doc.Backlinks,
	}
}

// Resolver turns clicks on rendered wikilinks into navigation requests.
type Resolver struct {
	// OnNavigate receives the raw target of the clicked link.
	OnNavigate func(target string)
}

// Navigate calls OnNavigate when href is a wikilink and reports whether it was.
func (r *Resolver) Navigate(href string) bool {
	target, ok := TargetFromHref(href)
	if !ok {
		return false
	}
	if r.OnNavigate != nil {
		r.OnNavigate(target)
	}
	return true
}
