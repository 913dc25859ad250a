package bot

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/speednet-khulna/messenger-bot/internal/knowledge"
	"github.com/speednet-khulna/messenger-bot/internal/messenger"
	"github.com/speednet-khulna/messenger-bot/internal/model"
)

// Route names.
const (
	RouteExternalID = "external_id"
	RouteGreeting   = "greeting"
	RoutePackages   = "packages"
	RouteAI         = "ai"
)

// Turn is one inbound question with everything a route needs to answer it.
type Turn struct {
	Tenant   model.Tenant
	SenderID string
	Text     string
	Profile  model.Profile
	Base     *knowledge.Base
}

// Reply is what a route wants sent back.
type Reply struct {
	Text         string
	QuickReplies []messenger.QuickReply
	ImageURL     string
	// Fallback marks a canned apology sent instead of a real answer.
	Fallback bool
}

// Route answers the turns it matches.
type Route struct {
	Name   string
	Match  func(Turn) bool
	Handle func(context.Context, Turn) (Reply, error)
}

// Router dispatches a turn to the first matching route.
type Router struct {
	routes []Route
}

// NewRouter creates a router. The last route should match everything.
func NewRouter(routes ...Route) *Router {
	return &Router{routes: routes}
}

// Dispatch runs the first matching route and returns its name.
func (r *Router) Dispatch(ctx context.Context, turn Turn) (string, Reply, error) {
	for _, route := range r.routes {
		if route.Match(turn) {
			reply, err := route.Handle(ctx, turn)
			return route.Name, reply, err
		}
	}
	return "", Reply{}, nil
}

// MaxExternalIDLength bounds a customer id in characters; every store
// backend accepts ids up to this length.
const MaxExternalIDLength = 64

var externalIDPattern = regexp.MustCompile(`(?i)^\s*(?:id|আইডি)\s*[:：]\s*(\S+)`)

// ParseExternalID extracts the value of an "id: <value>" message. Values
// longer than MaxExternalIDLength are not treated as ids.
func ParseExternalID(text string) (string, bool) {
	m := externalIDPattern.FindStringSubmatch(text)
	if m == nil || utf8.RuneCountInString(m[1]) > MaxExternalIDLength {
		return "", false
	}
	return m[1], true
}

// Greetings recognised by the greeting route, already normalised.
var Greetings = []string{
	"hi", "hello", "hey", "helo", "salam", "assalamualaikum", "assalamu alaikum", "asalamualaikum",
	"good morning", "good evening",
	"হাই", "হ্যালো", "হেলো", "সালাম", "আসসালামু আলাইকুম", "আসসালামুয়ালাইকুম", "শুভ সকাল",
}

// IsGreeting reports whether text is a bare greeting, optionally followed by
// a single word such as "hello bhai".
func IsGreeting(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}
	for _, g := range Greetings {
		if norm == g {
			return true
		}
		if rest, ok := strings.CutPrefix(norm, g+" "); ok && len(strings.Fields(rest)) <= 1 {
			return true
		}
	}
	return false
}

// normalize lower-cases text and turns punctuation into single spaces.
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// containsAny reports whether text contains one of the lower-case keywords.
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
