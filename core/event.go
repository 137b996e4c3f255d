package core

type EventKind string

const (
	EventPush         EventKind = "push"
	EventCreateBranch EventKind = "create_branch"
	EventDeleteBranch EventKind = "delete_branch"
	EventCreateTag    EventKind = "create_tag"
	EventDeleteTag    EventKind = "delete_tag"
	EventRepoCreated  EventKind = "repo_created"
	EventRepoDeleted  EventKind = "repo_deleted"
	EventUnknown      EventKind = "unknown"
)

var eventKinds = []EventKind{
	EventPush,
	EventCreateBranch,
	EventDeleteBranch,
	EventCreateTag,
	EventDeleteTag,
	EventRepoCreated,
	EventRepoDeleted,
	EventUnknown,
}

// EventKinds lists every kind in classification priority order.
func EventKinds() []EventKind {
	return append([]EventKind(nil), eventKinds...)
}

func (k EventKind) Valid() bool {
	for _, kind := range eventKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Classify returns the first matching kind. Only string values take part in
// comparisons; a numeric ref_type never matches "branch".
func Classify(payload Payload) EventKind {
	if payload.Has("before") && payload.Has("after") {
		return EventPush
	}

	deletedByUser := textEquals(payload, "pusher_type", "user")
	switch {
	case textEquals(payload, "ref_type", "branch"):
		if deletedByUser {
			return EventDeleteBranch
		}
		return EventCreateBranch
	case textEquals(payload, "ref_type", "tag"):
		if deletedByUser {
			return EventDeleteTag
		}
		return EventCreateTag
	}

	if payload.Has("action") && payload.Has("repository") {
		switch {
		case textEquals(payload, "action", "created"):
			return EventRepoCreated
		case textEquals(payload, "action", "deleted"):
			return EventRepoDeleted
		}
	}
	return EventUnknown
}

func textEquals(payload Payload, key, want string) bool {
	got, ok := payload.Get(key).Text()
	return ok && got == want
}
