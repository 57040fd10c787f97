package mcpserver

// HierarchyContract explains the timeline model to LLM clients before they
// create events.
const HierarchyContract = `# Lifeline Timeline Contract

Events form a hierarchy: year > period > event > item.

## Rules

1. A ` + "`year`" + ` has no parent. Every other type needs a ` + "`parent_id`" + `.
2. The parent's type must rank strictly above the child's. Levels may be
   skipped: an ` + "`event`" + ` directly under a ` + "`year`" + ` is fine.
3. ` + "`start_at`" + ` is required; ` + "`end_at`" + ` is optional and must not precede it.
4. Instants are ISO-8601: ` + "`2020-06-01`" + `, ` + "`2020-06-01T09:30:00`" + ` (UTC) or
   ` + "`2020-06-01T09:30:00+02:00`" + `.
5. Items (text, photo, video, link) hang off events and may be placed on the
   event's canvas. Media content is an opaque reference, never file bytes.
`
