package domain

import "time"

// Exchange is one recorded turn of a session: what the user said and what
// the machine answered.
type Exchange struct {
	SessionID  string    `json:"session_id" db:"session_id"`
	Seq        int       `json:"seq" db:"seq"`
	Timestamp  time.Time `json:"timestamp" db:"created_at"`
	Query      string    `json:"query" db:"query"`
	Text       string    `json:"text" db:"response"`
	Ending     Ending    `json:"ending" db:"ending"`
	Domain     string    `json:"domain,omitempty" db:"domain"`
	Rule       string    `json:"rule,omitempty" db:"rule"`
	Understood bool      `json:"understood" db:"understood"`
}

// NewExchange records resp as the answer to query.
func NewExchange(sessionID, query string, resp Response, understood bool) Exchange {
	return Exchange{
		SessionID:  sessionID,
		Timestamp:  time.Now().UTC(),
		Query:      query,
		Text:       resp.Text,
		Ending:     resp.Ending,
		Domain:     resp.Domain,
		Rule:       resp.Rule,
		Understood: understood,
	}
}
