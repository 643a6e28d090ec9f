package remote

import (
	"fmt"
	"strings"
)

// Query builds a files-API search expression. Terms are ANDed in the
// order they are added. Trashed records are always excluded: a trashed
// file that still matched by name or property would resurrect deleted
// entries during reconciliation.
type Query struct {
	terms []string
}

// NewQuery creates a query that excludes trashed records.
func NewQuery() *Query {
	return &Query{terms: []string{"trashed = false"}}
}

// escapeQueryString escapes backslashes and single quotes for
// inclusion in a quoted query term.
func escapeQueryString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)

	return strings.ReplaceAll(s, `'`, `\'`)
}

// NameEquals adds an exact file-name match.
func (q *Query) NameEquals(name string) *Query {
	q.terms = append(q.terms, fmt.Sprintf("name = '%s'", escapeQueryString(name)))
	return q
}

// InParent restricts matches to direct children of the given folder.
func (q *Query) InParent(folderID string) *Query {
	q.terms = append(q.terms, fmt.Sprintf("'%s' in parents", escapeQueryString(folderID)))
	return q
}

// MimeEquals adds a MIME type equality term.
func (q *Query) MimeEquals(mimeType string) *Query {
	q.terms = append(q.terms, fmt.Sprintf("mimeType = '%s'", escapeQueryString(mimeType)))
	return q
}

// MimeNot adds a MIME type inequality term.
func (q *Query) MimeNot(mimeType string) *Query {
	q.terms = append(q.terms, fmt.Sprintf("mimeType != '%s'", escapeQueryString(mimeType)))
	return q
}

// Property adds a custom key/value property match.
func (q *Query) Property(key, value string) *Query {
	q.terms = append(q.terms, fmt.Sprintf(
		"appProperties has { key='%s' and value='%s' }",
		escapeQueryString(key), escapeQueryString(value),
	))

	return q
}

// String renders the expression.
func (q *Query) String() string {
	return strings.Join(q.terms, " and ")
}
