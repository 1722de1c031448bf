package content

// Transform is a pure entity transformation applied across cache views.
// Implementations must not mutate the input; they clone and return.
type Transform func(Entity) Entity

// NextVoteState applies one vote action to the current state. Casting the
// direction already held clears it; switching direction moves the count
// between buckets in a single step.
func NextVoteState(current VoteState, direction VoteDirection) VoteState {
	next := current
	switch {
	case direction == VoteNone:
		return next
	case current.UserVote == direction:
		next.UserVote = VoteNone
		decrement(&next, direction)
	case current.UserVote == VoteNone:
		next.UserVote = direction
		increment(&next, direction)
	default:
		decrement(&next, current.UserVote)
		increment(&next, direction)
		next.UserVote = direction
	}
	return next
}

// ApplyVote returns a transform applying one vote action to votable
// entities. Non-votable entities pass through untouched.
func ApplyVote(direction VoteDirection) Transform {
	return func(entity Entity) Entity {
		votable, ok := entity.(Votable)
		if !ok {
			return entity
		}
		clone, ok := votable.CloneEntity().(Votable)
		if !ok {
			return entity
		}
		clone.SetVoteState(NextVoteState(votable.VoteState(), direction))
		return clone
	}
}

// ToggleSave returns a transform flipping the saved flag on savable
// entities. Non-savable entities pass through untouched.
func ToggleSave() Transform {
	return func(entity Entity) Entity {
		savable, ok := entity.(Savable)
		if !ok {
			return entity
		}
		clone, ok := savable.CloneEntity().(Savable)
		if !ok {
			return entity
		}
		clone.SetSaved(!savable.Saved())
		return clone
	}
}

// ReplaceOnlineMembers returns a transform installing the authoritative
// online set on a room, leaving the member count untouched.
func ReplaceOnlineMembers(members []string) Transform {
	return func(entity Entity) Entity {
		room, ok := entity.(*Room)
		if !ok {
			return entity
		}
		clone := room.CloneEntity().(*Room)
		clone.OnlineMembers = append([]string(nil), members...)
		return clone
	}
}

func increment(state *VoteState, direction VoteDirection) {
	switch direction {
	case VoteUp:
		state.Upvotes++
	case VoteDown:
		state.Downvotes++
	}
}

func decrement(state *VoteState, direction VoteDirection) {
	switch direction {
	case VoteUp:
		if state.Upvotes > 0 {
			state.Upvotes--
		}
	case VoteDown:
		if state.Downvotes > 0 {
			state.Downvotes--
		}
	}
}
