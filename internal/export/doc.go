package export

import (
	"bytes"
	"html/template"
	"strings"
)

// Word opens HTML documents served as .doc; this avoids a dependency on
// a real OOXML writer for what is a static one-page document.
var docTemplate = template.Must(template.New("doc").Parse(`<html xmlns:o="urn:schemas-microsoft-com:office:office" xmlns:w="urn:schemas-microsoft-com:office:word">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p><b>Marketplace:</b> {{.Marketplace}}</p>
<p><b>Suggested price:</b> {{.PriceRange}} ({{.Confidence}} confidence)</p>
<h2>Description</h2>
{{if .DescriptionIsHTML}}{{.DescriptionHTML}}{{else}}{{range .DescriptionLines}}<p>{{.}}</p>
{{end}}{{end}}
{{if .Tags}}<h2>Tags</h2>
<p>{{.Tags}}</p>{{end}}
<p><i>{{.Analysis}}</i></p>
</body>
</html>
`))

type docModel struct {
	Title             string
	Marketplace       string
	PriceRange        string
	Confidence        string
	Analysis          string
	DescriptionIsHTML bool
	DescriptionHTML   template.HTML
	DescriptionLines  []string
	Tags              string
}

func renderDoc(rec Record) []byte {
	price := rec.ListingData.SuggestedPrice.Normalize()
	content := rec.ListingData.Listing
	model := docModel{
		Title:       content.Title,
		Marketplace: rec.Marketplace.DisplayName(),
		PriceRange:  price.Range,
		Confidence:  price.Confidence,
		Analysis:    price.Analysis,
		Tags:        strings.Join(content.Tags, ", "),
	}
	// eBay descriptions are generated as HTML; everything else is plain
	// text split into paragraphs.
	if strings.Contains(content.Description, "<") && strings.Contains(content.Description, ">") {
		model.DescriptionIsHTML = true
		model.DescriptionHTML = template.HTML(content.Description)
	} else {
		for _, line := range strings.Split(content.Description, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				model.DescriptionLines = append(model.DescriptionLines, line)
			}
		}
	}

	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, model); err != nil {
		// Template and model are fully under our control
		return []byte(content.Title)
	}
	return buf.Bytes()
}
