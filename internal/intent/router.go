// Package intent classifies free-text user input and assistant output
// into secured-data queries, email drafts, or meeting drafts.
package intent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/telagent/gateway/internal/domain"
)

// Intent is the pre-turn classification of user input.
type Intent string

const (
	IntentSecuredPopularity Intent = "secured_popularity"
	IntentSecuredRevenue    Intent = "secured_revenue"
	IntentDefaultChat       Intent = "default_chat"
)

// Draft field defaults applied when the assistant's JSON omits them.
const (
	DefaultTimeZone = "SE Asia Standard Time"
	DefaultCalendar = "Calendar"
	DefaultLocation = "Microsoft Teams"
)

var (
	popularityRE   = regexp.MustCompile(`(?i)(most\s+popular|top[-\s]?selling|best\s+seller|highest\s+units|popular\s+product|top\s+product)`)
	revenueRE      = regexp.MustCompile(`(?i)\b(total\s+revenue|revenue|sales\s+revenue)\b`)
	revenueOfForRE = regexp.MustCompile(`(?i)\b(?:total\s+revenue|revenue|sales\s+revenue)\s+(?:of|for)\s+"?([A-Za-z0-9\-\s\+\./%]+?)"?\s*(\?|$)`)
	quotedRE       = regexp.MustCompile(`"([^"]+)"`)
	regionRE       = regexp.MustCompile(`(?i)\bregion\s*([0-9]+)\b|\b(region[0-9]+)\b`)
	meetingRE      = regexp.MustCompile(`(?i)\b(schedule|book|set\s*up|setup|arrange|create)\b.*\b(meeting|call|teams)\b`)
	listSplitRE    = regexp.MustCompile(`[;,]`)
	draftFenceRE   = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareEmailRE    = regexp.MustCompile(`(?s)(\{[^{}]*"subject"[^{}]*"bodyHtml"[^{}]*\})`)
	bareMeetingRE  = regexp.MustCompile(`(?s)(\{[^{}]*"subject"[^{}]*"start"[^{}]*"end"[^{}]*\})`)
)

// Classify decides the pre-turn route for raw user text. Revenue
// phrasing wins over popularity phrasing so that "revenue of the most
// popular product" takes the composite revenue path.
func Classify(text string) Intent {
	switch {
	case revenueRE.MatchString(text):
		return IntentSecuredRevenue
	case popularityRE.MatchString(text):
		return IntentSecuredPopularity
	default:
		return IntentDefaultChat
	}
}

// ExtractRegion returns the canonical region token ("region<n>") or "".
func ExtractRegion(text string) string {
	m := regionRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return "region" + m[1]
	}
	return strings.ToLower(strings.TrimSpace(m[2]))
}

// ExtractProduct pulls a product name out of a revenue question: the
// "revenue of/for <name>" phrase first, else the first quoted substring.
func ExtractProduct(text string) string {
	if m := revenueOfForRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := quotedRE.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// IsMeetingIntent reports whether the text asks for a meeting: a
// scheduling verb co-occurring with a meeting noun.
func IsMeetingIntent(text string) bool {
	return text != "" && meetingRE.MatchString(text)
}

// CoerceStringList accepts a list of strings or a comma/semicolon
// delimited string and returns trimmed, non-empty entries.
func CoerceStringList(v interface{}) []string {
	out := []string{}
	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range listSplitRE.Split(val, -1) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func draftCandidates(text string, bare *regexp.Regexp) []string {
	var candidates []string
	for _, m := range draftFenceRE.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}
	if len(candidates) == 0 {
		for _, m := range bare.FindAllStringSubmatch(text, -1) {
			candidates = append(candidates, m[1])
		}
	}
	return candidates
}

// ExtractEmailDraft looks for a JSON object with subject and bodyHtml in
// assistant text. Malformed candidates are skipped, never fatal.
func ExtractEmailDraft(text string) *domain.EmailDraft {
	for _, raw := range draftCandidates(text, bareEmailRE) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			continue
		}
		subject, okSubj := obj["subject"].(string)
		body, okBody := obj["bodyHtml"].(string)
		if !okSubj || !okBody {
			continue
		}
		return &domain.EmailDraft{
			Subject:    strings.TrimSpace(subject),
			BodyHTML:   body,
			Recipients: CoerceStringList(obj["recipients"]),
		}
	}
	return nil
}

// ExtractMeetingDraft looks for a scheduling JSON object. Field aliases:
// body/bodyHtml both map to body, recipients/requiredAttendees both to
// the required attendee list. Missing timeZone, calendarId and location
// take fixed defaults.
func ExtractMeetingDraft(text string) *domain.MeetingDraft {
	for _, raw := range draftCandidates(text, bareMeetingRE) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			continue
		}
		if _, ok := obj["subject"]; !ok {
			continue
		}
		if _, ok := obj["start"]; !ok {
			continue
		}
		if _, ok := obj["end"]; !ok {
			continue
		}

		body, _ := obj["body"].(string)
		if body == "" {
			body, _ = obj["bodyHtml"].(string)
		}
		required := obj["requiredAttendees"]
		if required == nil {
			required = obj["recipients"]
		}

		draft := &domain.MeetingDraft{
			Subject:           strings.TrimSpace(stringOr(obj["subject"], "")),
			Body:              body,
			TimeZone:          stringOr(obj["timeZone"], DefaultTimeZone),
			Start:             stringOr(obj["start"], ""),
			End:               stringOr(obj["end"], ""),
			CalendarID:        stringOr(obj["calendarId"], DefaultCalendar),
			RequiredAttendees: CoerceStringList(required),
			OptionalAttendees: CoerceStringList(obj["optionalAttendees"]),
			Location:          stringOr(obj["location"], DefaultLocation),
		}
		if draft.Subject != "" && draft.Start != "" && draft.End != "" {
			return draft
		}
	}
	return nil
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// DraftDecision is the post-turn action routing outcome. At most one of
// the drafts is set; a detected meeting intent outranks any email draft.
type DraftDecision struct {
	Email   *domain.EmailDraft
	Meeting *domain.MeetingDraft
}

// RouteDrafts scans the rendered answer (and the original user text) for
// action drafts after a default-chat turn. When meeting intent is
// detected but no meeting JSON was recoverable, a minimal stub is
// synthesized from whatever email draft was found rather than dropping
// the intent.
func RouteDrafts(userText, renderedAnswer string) DraftDecision {
	meetingRequested := IsMeetingIntent(userText) || IsMeetingIntent(renderedAnswer)
	draftMeeting := ExtractMeetingDraft(renderedAnswer)
	draftEmail := ExtractEmailDraft(renderedAnswer)

	if meetingRequested {
		if draftMeeting != nil {
			return DraftDecision{Meeting: draftMeeting}
		}
		stub := &domain.MeetingDraft{
			TimeZone:          DefaultTimeZone,
			CalendarID:        DefaultCalendar,
			Location:          DefaultLocation,
			RequiredAttendees: []string{},
			OptionalAttendees: []string{},
		}
		if draftEmail != nil {
			stub.Subject = draftEmail.Subject
			stub.RequiredAttendees = draftEmail.Recipients
		}
		return DraftDecision{Meeting: stub}
	}

	if draftMeeting != nil {
		return DraftDecision{Meeting: draftMeeting}
	}
	return DraftDecision{Email: draftEmail}
}

// SecuredBackend executes one policy-scoped data query.
type SecuredBackend interface {
	Query(ctx context.Context, role domain.Role, q domain.SecuredQuery) (*domain.SecuredResult, error)
}

// Router routes user input, composing multi-step secured lookups when a
// revenue query depends on a popularity result.
type Router struct {
	backend SecuredBackend
}

// NewRouter creates a router over the given secured backend.
func NewRouter(backend SecuredBackend) *Router {
	return &Router{backend: backend}
}

// RouteSecured handles the secured-data path. handled is false when the
// text is a default-chat turn and the caller should run the agent.
func (r *Router) RouteSecured(ctx context.Context, role domain.Role, text string) (handled bool, result *domain.SecuredResult, err error) {
	switch Classify(text) {
	case IntentSecuredPopularity:
		q := domain.SecuredQuery{Operation: domain.OpPopularProduct, RequestedRegion: ExtractRegion(text)}
		result, err = r.backend.Query(ctx, role, q)
		return true, result, err

	case IntentSecuredRevenue:
		product := ExtractProduct(text)
		region := ExtractRegion(text)
		// "Revenue of the most popular product" captures the popularity
		// phrase as if it were a product name; treat that as no product
		// so the composite path below can resolve the real one.
		if product != "" && popularityRE.MatchString(product) {
			product = ""
		}

		// "Revenue of the most popular product": resolve the product
		// first. If that step yields nothing usable, surface its raw
		// response instead of falling through to an unscoped query.
		if product == "" && popularityRE.MatchString(text) {
			step := domain.SecuredQuery{Operation: domain.OpPopularProduct, RequestedRegion: region}
			stepResult, stepErr := r.backend.Query(ctx, role, step)
			if stepErr != nil {
				return true, nil, stepErr
			}
			product = productFromResult(stepResult)
			if product == "" {
				return true, stepResult, nil
			}
		}

		q := domain.SecuredQuery{Operation: domain.OpProductRevenue, Product: product, RequestedRegion: region}
		result, err = r.backend.Query(ctx, role, q)
		return true, result, err

	default:
		return false, nil, nil
	}
}

func productFromResult(result *domain.SecuredResult) string {
	if result == nil || len(result.Data) == 0 {
		return ""
	}
	var data struct {
		Product string `json:"Product"`
	}
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return ""
	}
	return data.Product
}
