package datasets

import (
	"regexp"
	"slices"
	"strings"
)

// quoteRe matches reply attributions and quoted lines.
var quoteRe = regexp.MustCompile(`(writes in|writes:|wrote:|says:|said:|^In article|^Quoted from|^\||^>)`)

// StripHeader removes the mail/news header, i.e. everything up to and
// including the first blank line. A post without a blank line becomes empty.
func StripHeader(text string) string {
	_, after, found := strings.Cut(text, "\n\n")
	if !found {
		return ""
	}
	return after
}

// StripQuoting removes lines that quote another post or attribute a quote.
func StripQuoting(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !quoteRe.MatchString(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// StripFooter removes the signature block: everything from the last line
// that is blank or made only of dashes. Text is returned unchanged when that
// line is the first one.
func StripFooter(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	lineNum := len(lines) - 1
	for ; lineNum >= 0; lineNum-- {
		if strings.Trim(strings.TrimSpace(lines[lineNum]), "-") == "" {
			break
		}
	}
	if lineNum > 0 {
		return strings.Join(lines[:lineNum], "\n")
	}
	return text
}

// Post parts that Fetch20Newsgroups can remove.
const (
	RemoveHeaders = "headers"
	RemoveFooters = "footers"
	RemoveQuotes  = "quotes"
)

// stripParts applies the requested removals in a fixed order:
// headers, then footers, then quotes.
func stripParts(text string, remove []string) string {
	if slices.Contains(remove, RemoveHeaders) {
		text = StripHeader(text)
	}
	if slices.Contains(remove, RemoveFooters) {
		text = StripFooter(text)
	}
	if slices.Contains(remove, RemoveQuotes) {
		text = StripQuoting(text)
	}
	return text
}

func validRemove(part string) bool {
	return part == RemoveHeaders || part == RemoveFooters || part == RemoveQuotes
}
