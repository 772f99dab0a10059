package domain

import (
	"time"
)

type Proposal struct {
	ID             string            `json:"id"`
	SubmitterEmail string            `json:"-"`
	SubmitterName  string            `json:"name,omitempty"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	VoteCount      int64             `json:"votes"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Clone returns a deep copy so stores can hand out values without sharing
// the attributes map.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	c := *p
	if p.Attributes != nil {
		c.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}
