package core

import "strings"

const (
	placeholderActor      = "{actor}"
	placeholderRepository = "{repo}"
	placeholderRef        = "{ref}"
)

var messageTemplates = map[EventKind]string{
	EventPush:         "🚀 **Push Event** by **{actor}** in **{repo}**\n🔹 **Branch:** {ref}",
	EventCreateBranch: "🌿 **New Branch Created** by **{actor}** in **{repo}**\n🔹 **Branch:** {ref}",
	EventDeleteBranch: "❌ **Branch Deleted** by **{actor}** in **{repo}**\n🗑️ **Branch:** {ref}",
	EventCreateTag:    "🏷️ **New Tag Created** by **{actor}** in **{repo}**\n🔹 **Tag:** {ref}",
	EventDeleteTag:    "🗑️ **Tag Deleted** by **{actor}** in **{repo}**\n🚫 **Tag:** {ref}",
	EventRepoCreated:  "📁 **New Repository Created** by **{actor}**\n🔹 **Repository:** {repo}",
	EventRepoDeleted:  "🚨 **Repository Deleted** by **{actor}**\n🗑️ **Repository:** {repo}",
	EventUnknown:      "⚡ **Unhandled Event** in **{repo}** by **{actor}**.",
}

// MessageTemplate returns the raw template for kind, falling back to the
// unhandled-event text for kinds without one.
func MessageTemplate(kind EventKind) string {
	if template, ok := messageTemplates[kind]; ok {
		return template
	}
	return messageTemplates[EventUnknown]
}

func FormatMessage(payload Payload, kind EventKind) string {
	replacer := strings.NewReplacer(
		placeholderActor, payload.Actor(),
		placeholderRepository, payload.RepositoryName(),
		placeholderRef, payload.Ref(),
	)
	return replacer.Replace(MessageTemplate(kind))
}
