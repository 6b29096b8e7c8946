package threat

import (
	"regexp"
	"strings"
)

var (
	threatHeadingRe = regexp.MustCompile(`(?mi)^#{2,3}[ \t]*Threat:[ \t]*(.+)$`)
	headingRe       = regexp.MustCompile(`(?m)^##[ \t]+(.+)$`)
	numberedItemRe  = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+(.+)$`)
	mitigationRe    = regexp.MustCompile(`(?i)\*{0,2}mitigations?:\*{0,2}`)
	descriptionRe   = regexp.MustCompile(`(?i)\*{0,2}description:\*{0,2}`)
)

// structuralHeadings are section titles that describe document structure
// rather than threats; the loose heading extractor skips them.
var structuralHeadings = map[string]struct{}{
	"overview":     {},
	"introduction": {},
	"summary":      {},
	"conclusion":   {},
	"background":   {},
}

// Extract recovers threat records from Markdown produced by an LLM or a
// human.  Four patterns are tried in order, from most to least structured,
// and the first one that yields at least one record wins:
//
//  1. "## Threat: <title>" headings with labeled Description/Mitigation fields
//  2. generic "## <title>" headings followed by a blank line and a body
//  3. generic "## <title>" headings with any (possibly empty) body,
//     skipping structural section headings ("Overview", "Summary", ...)
//  4. numbered list items ("1. <title>" with trailing prose)
//
// Extract never fails: unparseable input produces an empty slice, and a
// record whose title cannot be recovered gets UntitledTitle.
func Extract(text string) []Record {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if recs := extractThreatHeadings(text); len(recs) > 0 {
		return recs
	}
	if recs := extractHeadingBlocks(text, true); len(recs) > 0 {
		return recs
	}
	if recs := extractHeadingBlocks(text, false); len(recs) > 0 {
		return recs
	}
	return extractNumberedItems(text)
}

type block struct {
	title string
	// gap is the raw text between the end of the heading line and the body,
	// used to tell "heading, blank line, body" apart from a heading whose
	// body starts on the next line.
	gap  string
	body string
}

// segment splits text into blocks delimited by the matches of re, whose
// first capture group is the block title.  The body of each block runs to
// the start of the next match.  Splitting on match indexes sidesteps the
// lookahead constructs RE2 does not support.
func segment(text string, re *regexp.Regexp) []block {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	blocks := make([]block, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		raw := text[m[1]:end]
		blocks = append(blocks, block{
			title: strings.TrimSpace(text[m[2]:m[3]]),
			gap:   raw[:len(raw)-len(strings.TrimLeft(raw, "\r\n"))],
			body:  strings.TrimSpace(raw),
		})
	}
	return blocks
}

func extractThreatHeadings(text string) []Record {
	var recs []Record
	for _, b := range segment(text, threatHeadingRe) {
		desc, mit := labeledFields(b.body)
		recs = append(recs, newRecord(b.title, desc, mit))
	}
	return recs
}

// labeledFields pulls "**Description:**" and "**Mitigation:**" labeled
// sections out of a threat block.  An unlabeled body is taken whole as the
// description.
func labeledFields(body string) (desc, mit string) {
	if loc := mitigationRe.FindStringIndex(body); loc != nil {
		mit = strings.TrimSpace(body[loc[1]:])
		body = strings.TrimSpace(body[:loc[0]])
	}
	if loc := descriptionRe.FindStringIndex(body); loc != nil {
		body = strings.TrimSpace(body[loc[1]:])
	}
	return body, mit
}

func extractHeadingBlocks(text string, requireBlankLine bool) []Record {
	var recs []Record
	for _, b := range segment(text, headingRe) {
		// Only the loose pass filters structural headings; the blank-line
		// pass takes every heading it matches.
		if !requireBlankLine {
			if _, structural := structuralHeadings[strings.ToLower(b.title)]; structural {
				continue
			}
		}
		if strings.HasPrefix(strings.ToLower(b.title), "threat:") {
			// Already handled by the labeled pattern; reaching here means
			// that pattern produced nothing, so treat the prefix as noise.
			b.title = strings.TrimSpace(b.title[len("threat:"):])
		}
		if requireBlankLine {
			if b.body == "" || strings.Count(b.gap, "\n") < 2 {
				continue
			}
		}
		desc, mit := labeledFields(b.body)
		recs = append(recs, newRecord(b.title, desc, mit))
	}
	return recs
}

// extractNumberedItems is the last-resort pattern: each numbered list item
// becomes a record titled by the item line, with any trailing prose up to
// the next item as its description.  Items whose prose runs under 10
// characters are discarded as noise (bare list entries, page numbers).
func extractNumberedItems(text string) []Record {
	var recs []Record
	for _, b := range segment(text, numberedItemRe) {
		if len(b.body) < 10 {
			continue
		}
		desc, mit := labeledFields(b.body)
		recs = append(recs, newRecord(b.title, desc, mit))
	}
	return recs
}

func newRecord(title, desc, mit string) Record {
	title = strings.TrimSpace(title)
	if title == "" {
		title = UntitledTitle
	}
	return Record{
		Title:       title,
		Description: strings.TrimSpace(desc),
		Mitigation:  strings.TrimSpace(mit),
	}
}
