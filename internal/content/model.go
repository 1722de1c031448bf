package content

import "time"

// VoteDirection enumerates the vote a user can hold on an entity.
type VoteDirection string

const (
	// VoteUp marks an upvote held by the current user.
	VoteUp VoteDirection = "up"
	// VoteDown marks a downvote held by the current user.
	VoteDown VoteDirection = "down"
	// VoteNone marks the absence of a vote.
	VoteNone VoteDirection = ""
)

// VoteState carries the aggregate counters plus the current user's vote.
// At most one direction is attributable to the current user at any time.
type VoteState struct {
	Upvotes   int64
	Downvotes int64
	UserVote  VoteDirection
}

// Entity is implemented by every record held in a cache view.
type Entity interface {
	EntityID() string
	CloneEntity() Entity
}

// Votable is implemented by entities carrying vote counters.
type Votable interface {
	Entity
	VoteState() VoteState
	SetVoteState(state VoteState)
}

// Savable is implemented by entities the user can save to their list.
type Savable interface {
	Entity
	Saved() bool
	SetSaved(saved bool)
}

// Post is a feed post.
type Post struct {
	ID           string
	AuthorID     string
	Title        string
	Body         string
	City         string
	Votes        VoteState
	IsSaved      bool
	CommentCount int64
	CreatedAt    time.Time
}

func (p *Post) EntityID() string { return p.ID }

func (p *Post) CloneEntity() Entity {
	clone := *p
	return &clone
}

func (p *Post) VoteState() VoteState         { return p.Votes }
func (p *Post) SetVoteState(state VoteState) { p.Votes = state }
func (p *Post) Saved() bool                  { return p.IsSaved }
func (p *Post) SetSaved(saved bool)          { p.IsSaved = saved }

// Comment is a threaded comment on a post. ParentID is empty for top-level
// comments. Pending marks an optimistic echo awaiting its server id.
type Comment struct {
	ID        string
	PostID    string
	ParentID  string
	AuthorID  string
	Body      string
	Votes     VoteState
	Pending   bool
	CreatedAt time.Time
}

func (c *Comment) EntityID() string { return c.ID }

func (c *Comment) CloneEntity() Entity {
	clone := *c
	return &clone
}

func (c *Comment) VoteState() VoteState         { return c.Votes }
func (c *Comment) SetVoteState(state VoteState) { c.Votes = state }

// CityReview is a rated review of a city, with per-category scores.
type CityReview struct {
	ID        string
	AuthorID  string
	City      string
	Country   string
	Title     string
	Body      string
	Ratings   map[string]int
	Votes     VoteState
	IsSaved   bool
	CreatedAt time.Time
}

func (r *CityReview) EntityID() string { return r.ID }

func (r *CityReview) CloneEntity() Entity {
	clone := *r
	if r.Ratings != nil {
		clone.Ratings = make(map[string]int, len(r.Ratings))
		for category, score := range r.Ratings {
			clone.Ratings[category] = score
		}
	}
	return &clone
}

func (r *CityReview) VoteState() VoteState         { return r.Votes }
func (r *CityReview) SetVoteState(state VoteState) { r.Votes = state }
func (r *CityReview) Saved() bool                  { return r.IsSaved }
func (r *CityReview) SetSaved(saved bool)          { r.IsSaved = saved }

// ReviewComment is a comment on a city review.
type ReviewComment struct {
	ID        string
	ReviewID  string
	AuthorID  string
	Body      string
	Votes     VoteState
	Pending   bool
	CreatedAt time.Time
}

func (c *ReviewComment) EntityID() string { return c.ID }

func (c *ReviewComment) CloneEntity() Entity {
	clone := *c
	return &clone
}

func (c *ReviewComment) VoteState() VoteState         { return c.Votes }
func (c *ReviewComment) SetVoteState(state VoteState) { c.Votes = state }

// ChatMessage is one message in a chat room. Pending marks an optimistic
// echo that still carries its temporary local id.
type ChatMessage struct {
	ID       string
	RoomID   string
	AuthorID string
	Body     string
	Pending  bool
	SentAt   time.Time
}

func (m *ChatMessage) EntityID() string { return m.ID }

func (m *ChatMessage) CloneEntity() Entity {
	clone := *m
	return &clone
}

// Room is a chat room. OnlineMembers is replaced wholesale on each
// presence event; the server is authoritative for the full set.
type Room struct {
	ID            string
	Name          string
	MemberCount   int64
	OnlineMembers []string
	IsMember      bool
}

func (r *Room) EntityID() string { return r.ID }

func (r *Room) CloneEntity() Entity {
	clone := *r
	if r.OnlineMembers != nil {
		clone.OnlineMembers = append([]string(nil), r.OnlineMembers...)
	}
	return &clone
}
