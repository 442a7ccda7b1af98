package mcpserver

// DocumentFormatContract describes the canonical Markdown document format
// that LLM consumers should follow when creating or updating documents.
const DocumentFormatContract = `# Orgview Document Format Contract

Every Markdown document under the org root follows this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title   # OPTIONAL: falls back to the first heading
type: task                    # OPTIONAL: task | knowledge | inbox | reminder
status: todo                  # type-specific, see below
tags:                         # OPTIONAL: YAML list or comma separated string
  - tag-one
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other documents.
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Fields by type

- **task**: ` + "`status`" + ` (todo, in-progress, blocked, done, cancelled),
  ` + "`priority`" + ` (low, medium, high, urgent), ` + "`due`" + ` (date string), ` + "`tags`" + `.
- **reminder**: ` + "`status`" + ` (pending, snoozed, done), ` + "`remind_at`" + ` (date-time string),
  ` + "`repeat`" + ` (none, daily, weekly, monthly, yearly).
- **knowledge**, **inbox**, untyped: ` + "`tags`" + `.

Values outside the listed options are rejected. Any other frontmatter keys
are kept as-is and never rewritten.

## Rules

1. The ` + "`---`" + ` fence must be the first line of the file.
2. **Wikilinks** use double brackets: ` + "`[[other-doc]]`" + `. The target is a path relative
   to the org root, with or without the ` + "`.md`" + ` extension.
3. **File paths** end with ` + "`.md`" + ` and use forward slashes.
4. **Encoding** is UTF-8 with a trailing newline.
5. Wikilinks inside code blocks and inline code are not links.

## Example

` + "```" + `markdown
---
title: Renew passport
type: reminder
status: pending
remind_at: 2025-06-01T09:00
repeat: none
---

Bring the photos from [[inbox/photo-booth|the photo booth]].
` + "```" + `
`
