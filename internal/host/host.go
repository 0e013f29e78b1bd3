// Package host holds the boundary to the application embedding the change
// endpoint: who may call it, and which template directory is active.
package host

import (
	"crypto/subtle"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Capabilities is the host's authorization check. Both predicates must hold
// for the change endpoint to answer.
type Capabilities interface {
	IsAuthenticated(r *http.Request) bool
	IsAdmin(r *http.Request) bool
}

// TemplateResolver returns the directory the watcher defaults to.
type TemplateResolver interface {
	Resolve() string
}

type ResolverFunc func() string

func (f ResolverFunc) Resolve() string { return f() }

const (
	TokenCookie   = "autoreload_token"
	DefaultMarker = "index.php"
)

type Token struct {
	Value string `yaml:"token"`
	Admin bool   `yaml:"admin"`
}

// TokenAuthorizer authenticates requests by bearer token or cookie.
type TokenAuthorizer struct {
	tokens []Token
}

func NewTokenAuthorizer(tokens []Token) *TokenAuthorizer {
	valid := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Value != "" {
			valid = append(valid, t)
		}
	}
	return &TokenAuthorizer{tokens: valid}
}

func (a *TokenAuthorizer) IsAuthenticated(r *http.Request) bool {
	_, ok := a.lookup(r)
	return ok
}

func (a *TokenAuthorizer) IsAdmin(r *http.Request) bool {
	t, ok := a.lookup(r)
	return ok && t.Admin
}

func (a *TokenAuthorizer) lookup(r *http.Request) (Token, bool) {
	presented := requestToken(r)
	if presented == "" {
		return Token{}, false
	}

	// Compare against every token so the time taken does not depend on which one matched.
	var found Token
	ok := false
	for _, t := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(t.Value), []byte(presented)) == 1 && !ok {
			found, ok = t, true
		}
	}
	return found, ok
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// TemplateDir resolves the active template the way the CMS does: the page's
// own template when it is installed (its marker file exists), otherwise the
// default template.
type TemplateDir struct {
	Base    string
	Default string
	Page    string
	Marker  string
}

func (t TemplateDir) Resolve() string {
	return filepath.Join(t.Base, t.Active())
}

// Active returns the name of the template in use.
func (t TemplateDir) Active() string {
	if t.Page == "" {
		return t.Default
	}

	marker := t.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	dir, ok := TemplatePath(t.Base, t.Page)
	if !ok {
		return t.Default
	}
	if _, err := os.Stat(filepath.Join(dir, marker)); err != nil {
		return t.Default
	}
	return t.Page
}

// TemplatePath joins a template name onto base. The name must be a single
// path element.
func TemplatePath(base, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return filepath.Join(base, name), true
}
