// Package message turns a stored feed entry into a ready-to-send embed.
package message

import (
	"log"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/feedherald/feedherald/pkg/converter"
	"github.com/feedherald/feedherald/pkg/notify"
	"github.com/feedherald/feedherald/pkg/store"
	"github.com/microcosm-cc/bluemonday"
)

const truncationMarker = " ... (truncated)"
const noSummaryPlaceholder = "_No Summary Provided_"

var sanitizer = bluemonday.UGCPolicy()

// FormatEntry builds the embed for a single entry: marker-prefixed title,
// truncated summary converted to quoted markdown, first embedded image,
// publish timestamp and the source feed as footer.
func FormatEntry(entry store.Entry, maxContentLength int) notify.Message {
	log.Printf("[DEBUG] formatting entry %q", entry.Link)

	message := notify.Message{
		Title:     "📰 " + entry.Title,
		URL:       entry.Link,
		Timestamp: entry.Published,
		Footer:    "🔗 " + entry.FeedURL + " 🔗",
	}

	summaryMarkdown := ""
	if entry.Summary != "" {
		truncated := truncateHtml(sanitizer.Sanitize(entry.Summary), maxContentLength)
		message.ImageURL = extractFirstImage(truncated)
		summaryMarkdown = convertHtmlToMarkdown(truncated)
	}

	if summaryMarkdown != "" {
		message.Description = "💬 **Summary:**\n\n" + summaryMarkdown
	} else {
		message.Description = "💬 **Summary:**\n\n" + noSummaryPlaceholder
	}

	return message
}

// truncateHtml cuts the html at length and re-parses the remainder so that
// a tag broken by the cut is repaired, then appends the truncation marker.
func truncateHtml(html string, length int) string {
	if len(html) <= length {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html[:length]))
	if err != nil {
		return html[:length] + "<strong>" + truncationMarker + "</strong>"
	}

	body := doc.Find("body")
	body.AppendHtml("<strong>" + truncationMarker + "</strong>")

	truncated, err := body.Html()
	if err != nil {
		return html[:length] + "<strong>" + truncationMarker + "</strong>"
	}
	return truncated
}

func extractFirstImage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func convertHtmlToMarkdown(html string) string {
	conv := md.NewConverter("", true, nil)
	conv.AddRules(converter.GetEmbedConverterRules()...)

	markdown, err := conv.ConvertString(html)
	if err != nil {
		log.Printf("[ERROR] failure converting a summary to markdown: %v", err)
		return ""
	}

	var quoted []string
	for _, line := range strings.Split(strings.TrimSpace(markdown), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		quoted = append(quoted, "> "+line)
	}
	return strings.Join(quoted, "\n")
}
