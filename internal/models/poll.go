package models

// Poll is the payload of a poll message
type Poll struct {
	ID       string       `json:"poll_id" validate:"required"`
	Question string       `json:"question" validate:"required"`
	Options  []PollOption `json:"options" validate:"min=2,dive"`
	// UserVote is the option the current user picked, derived per viewer.
	UserVote string `json:"user_vote,omitempty"`
}

// PollOption is one choice of a poll
type PollOption struct {
	ID        string   `json:"id" validate:"required"`
	Text      string   `json:"text" validate:"required"`
	VoteCount int      `json:"votes" validate:"gte=0"`
	Voters    []string `json:"voters"`
}

// Clone returns a deep copy of the poll
func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	out := *p
	out.Options = make([]PollOption, len(p.Options))
	for i, o := range p.Options {
		o.Voters = append([]string(nil), o.Voters...)
		out.Options[i] = o
	}
	return &out
}

// VoteOf returns the option userID voted for, or "" when none
func (p *Poll) VoteOf(userID string) string {
	for _, o := range p.Options {
		for _, v := range o.Voters {
			if v == userID {
				return o.ID
			}
		}
	}
	return ""
}

// WithVote returns a copy of the poll in which userID's single vote sits on
// optionID. A previous vote on another option is transferred, never doubled.
// Unknown options leave the poll unchanged.
func (p *Poll) WithVote(userID, optionID string) *Poll {
	out := p.Clone()
	target := -1
	for i := range out.Options {
		if out.Options[i].ID == optionID {
			target = i
		}
	}
	if target < 0 {
		return out
	}

	// Servers may omit voter lists and only report UserVote for the viewer.
	current := out.VoteOf(userID)
	if current == "" {
		current = out.UserVote
	}
	if current == optionID {
		out.UserVote = optionID
		return out
	}

	for i := range out.Options {
		o := &out.Options[i]
		if o.ID != current {
			continue
		}
		kept := o.Voters[:0]
		for _, v := range o.Voters {
			if v != userID {
				kept = append(kept, v)
			}
		}
		o.Voters = kept
		if o.VoteCount > 0 {
			o.VoteCount--
		}
	}

	out.Options[target].Voters = append(out.Options[target].Voters, userID)
	out.Options[target].VoteCount++
	out.UserVote = optionID
	return out
}

// ForViewer returns a copy with UserVote derived for userID
func (p *Poll) ForViewer(userID string) *Poll {
	out := p.Clone()
	out.UserVote = out.VoteOf(userID)
	return out
}
