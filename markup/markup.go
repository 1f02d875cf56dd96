// Package markup checks that translated HTML keeps its tag structure and
// stamps lang/dir on full documents.
package markup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// TagSignature returns the ordered sequence of tags in fragment, e.g.
// ["<p>", "<a href>", "</a>", "</p>"]. Attribute names are kept, values are
// not, so translated alt/title text does not change the signature.
func TagSignature(fragment string) []string {
	var sig []string
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a tokenizer error; either way the input is exhausted.
			return sig
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			sig = append(sig, openTag(tok, tt == html.SelfClosingTagToken))
		case html.EndTagToken:
			tok := z.Token()
			sig = append(sig, "</"+tok.Data+">")
		}
	}
}

func openTag(tok html.Token, selfClosing bool) string {
	keys := make([]string, 0, len(tok.Attr))
	for _, a := range tok.Attr {
		keys = append(keys, strings.ToLower(a.Key))
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<" + tok.Data)
	for _, k := range keys {
		b.WriteString(" " + k)
	}
	if selfClosing {
		b.WriteString("/")
	}
	b.WriteString(">")
	return b.String()
}

// PreservesTags reports whether translated has the same tag signature as source.
func PreservesTags(source, translated string) bool {
	return Mismatch(source, translated) == ""
}

// Mismatch describes the first difference between the tag signatures of
// source and translated, or returns "" when they match.
func Mismatch(source, translated string) string {
	want := TagSignature(source)
	got := TagSignature(translated)

	for i := 0; i < len(want) && i < len(got); i++ {
		if want[i] != got[i] {
			return fmt.Sprintf("tag %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	switch {
	case len(got) < len(want):
		return fmt.Sprintf("missing %s and %d more tag(s)", want[len(got)], len(want)-len(got)-1)
	case len(got) > len(want):
		return fmt.Sprintf("unexpected %s and %d more tag(s)", got[len(want)], len(got)-len(want)-1)
	}
	return ""
}

// IsDocument reports whether s looks like a full HTML document rather than a fragment.
func IsDocument(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html")
}

// StampDocument sets lang and dir on the <html> element of doc.
// Fragments are returned unchanged.
func StampDocument(doc, lang, dir string) (string, error) {
	if !IsDocument(doc) {
		return doc, nil
	}

	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parsing document: %w", err)
	}

	root := d.Find("html")
	if root.Length() == 0 {
		return doc, nil
	}
	root.SetAttr("lang", lang)
	root.SetAttr("dir", dir)

	out, err := goquery.OuterHtml(root)
	if err != nil {
		return "", fmt.Errorf("serializing document: %w", err)
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(doc)), "<!doctype") {
		out = "<!DOCTYPE html>" + out
	}
	return out, nil
}
