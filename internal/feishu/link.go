package feishu

import (
	"net/url"
	"regexp"
	"strings"
)

// Kind is the document family a link points at
type Kind string

const (
	KindDocx    Kind = "docx"
	KindDocs    Kind = "docs"
	KindWiki    Kind = "wiki"
	KindMinutes Kind = "minutes"
	KindSheet   Kind = "sheet"
	KindBitable Kind = "bitable"
	KindFile    Kind = "file"
)

// IsLegacy reports whether documents of this kind lack a block API
func (k Kind) IsLegacy() bool {
	return k == KindDocs
}

// DocumentReference identifies one remote document
type DocumentReference struct {
	Kind  Kind   `json:"kind"`
	Token string `json:"token"`
}

// String renders the reference as kind:token
func (r DocumentReference) String() string {
	return string(r.Kind) + ":" + r.Token
}

// documentHosts are the registrable domains serving documents
var documentHosts = []string{"feishu.cn", "larksuite.com"}

// mediaHosts serve media bytes and temporary download URLs besides the document hosts
var mediaHosts = []string{"feishucdn.com", "larksuitecdn.com", "larkoffice.com", "feishu.net"}

type pathMarker struct {
	kind    Kind
	pattern *regexp.Regexp
}

// pathMarkers are checked in priority order; the first marker followed by a token wins
var pathMarkers = []pathMarker{
	{KindDocx, regexp.MustCompile(`/docx/([A-Za-z0-9]+)`)},
	{KindDocs, regexp.MustCompile(`/docs/([A-Za-z0-9]+)`)},
	{KindWiki, regexp.MustCompile(`/wiki/([A-Za-z0-9]+)`)},
	{KindMinutes, regexp.MustCompile(`/minutes/([A-Za-z0-9]+)`)},
	{KindSheet, regexp.MustCompile(`/sheets?/([A-Za-z0-9]+)`)},
	{KindBitable, regexp.MustCompile(`/base/([A-Za-z0-9]+)|/bitable/([A-Za-z0-9]+)`)},
	{KindFile, regexp.MustCompile(`/file/([A-Za-z0-9]+)`)},
}

// ResolveLink classifies rawURL into a DocumentReference.
// It returns nil for foreign hosts, unparsable input and paths without a known marker.
func ResolveLink(rawURL string) *DocumentReference {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	if !isDocumentHost(u.Hostname()) {
		return nil
	}

	for _, marker := range pathMarkers {
		match := marker.pattern.FindStringSubmatch(u.Path)
		if match == nil {
			continue
		}
		for _, group := range match[1:] {
			if group != "" {
				return &DocumentReference{Kind: marker.kind, Token: group}
			}
		}
	}

	return nil
}

// isDocumentHost matches a known domain or any of its subdomains
func isDocumentHost(host string) bool {
	return MatchesDomain(host, documentHosts)
}

// IsPlatformHost reports whether host serves documents, API calls or media of the platform
func IsPlatformHost(host string) bool {
	return MatchesDomain(host, documentHosts) || MatchesDomain(host, mediaHosts)
}

// MatchesDomain reports whether host is one of domains or a subdomain of one
func MatchesDomain(host string, domains []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, domain := range domains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
