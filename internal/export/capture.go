package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

var panelTemplate = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8">
<style>
body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f3f4f6; }
#listing-panel { width: 640px; margin: 24px auto; background: #fff; border-radius: 12px; padding: 28px; box-shadow: 0 2px 8px rgba(0,0,0,.12); }
h1 { font-size: 22px; margin: 0 0 4px; }
.marketplace { color: #6b7280; font-size: 13px; margin-bottom: 16px; }
.price { font-size: 18px; font-weight: 600; color: #047857; margin-bottom: 4px; }
.confidence { font-size: 12px; color: #6b7280; margin-bottom: 16px; }
.description { font-size: 14px; line-height: 1.5; white-space: pre-wrap; }
.tags { margin-top: 16px; }
.tag { display: inline-block; background: #e0e7ff; color: #3730a3; border-radius: 9999px; padding: 2px 10px; font-size: 12px; margin: 0 6px 6px 0; }
img { max-width: 100%; border-radius: 8px; margin-bottom: 16px; }
</style>
</head>
<body>
<div id="listing-panel">
{{if .ImageSrc}}<img src="{{.ImageSrc}}">{{end}}
<h1>{{.Title}}</h1>
<div class="marketplace">{{.Marketplace}}</div>
<div class="price">{{.PriceRange}}</div>
<div class="confidence">{{.Confidence}} confidence &middot; {{.Analysis}}</div>
<div class="description">{{.Description}}</div>
{{if .Tags}}<div class="tags">{{range .Tags}}<span class="tag">{{.}}</span>{{end}}</div>{{end}}
</div>
</body>
</html>
`))

type panelModel struct {
	Title       string
	Marketplace string
	PriceRange  string
	Confidence  string
	Analysis    string
	Description string
	Tags        []string
	ImageSrc    template.URL
}

// renderPanelHTML builds the standalone listing panel page that the
// capture screenshots.
func renderPanelHTML(rec Record) ([]byte, error) {
	price := rec.ListingData.SuggestedPrice.Normalize()
	model := panelModel{
		Title:       rec.ListingData.Listing.Title,
		Marketplace: rec.Marketplace.DisplayName(),
		PriceRange:  price.Range,
		Confidence:  price.Confidence,
		Analysis:    price.Analysis,
		Description: stripHTMLTags(rec.ListingData.Listing.Description),
		Tags:        rec.ListingData.Listing.Tags,
	}
	if img := rec.Input.Image; img != nil {
		model.ImageSrc = template.URL(fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data))
	}
	var buf bytes.Buffer
	if err := panelTemplate.Execute(&buf, model); err != nil {
		return nil, fmt.Errorf("failed to render listing panel: %w", err)
	}
	return buf.Bytes(), nil
}

// Capture renders the listing panel in headless Chrome and screenshots
// it. This is the one export that is not a pure function of the record.
func Capture(ctx context.Context, rec Record) (*File, error) {
	html, err := renderPanelHTML(rec)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if bin := findChromeBinary(); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)

	var png []byte
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(720, 1280),
		chromedp.Navigate(dataURL),
		chromedp.WaitVisible("#listing-panel"),
		chromedp.Screenshot("#listing-panel", &png, chromedp.NodeVisible),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture listing panel (is Chrome installed?): %w", err)
	}

	return &File{
		Name:        listing.Slugify(rec.DisplayTitle()) + ".png",
		ContentType: "image/png",
		Data:        png,
	}, nil
}

func findChromeBinary() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// stripHTMLTags flattens an HTML description (eBay) for the plain-text
// panel rendering.
func stripHTMLTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
