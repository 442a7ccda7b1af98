package models

// FieldKind is the editable shape of a frontmatter field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindEnum
	KindTags
)

func (k FieldKind) String() string {
	switch k {
	case KindEnum:
		return "enum"
	case KindTags:
		return "tags"
	default:
		return "string"
	}
}

// FieldSpec describes one editable frontmatter field.
type FieldSpec struct {
	Name    string
	Kind    FieldKind
	Options []string // allowed values for KindEnum
}

// Task and reminder status values.
var (
	TaskStatuses     = []string{"todo", "in-progress", "blocked", "done", "cancelled"}
	TaskPriorities   = []string{"low", "medium", "high", "urgent"}
	ReminderStatuses = []string{"pending", "snoozed", "done"}
	ReminderRepeats  = []string{"none", "daily", "weekly", "monthly", "yearly"}
)

var tagsOnly = []FieldSpec{{Name: "tags", Kind: KindTags}}

var schemas = map[DocType][]FieldSpec{
	TypeTask: {
		{Name: "status", Kind: KindEnum, Options: TaskStatuses},
		{Name: "priority", Kind: KindEnum, Options: TaskPriorities},
		{Name: "due", Kind: KindString},
		{Name: "tags", Kind: KindTags},
	},
	TypeReminder: {
		{Name: "status", Kind: KindEnum, Options: ReminderStatuses},
		{Name: "remind_at", Kind: KindString},
		{Name: "repeat", Kind: KindEnum, Options: ReminderRepeats},
	},
	TypeKnowledge: tagsOnly,
	TypeInbox:     tagsOnly,
	TypeUnset:     tagsOnly,
}

// Schema returns the editable field set for a document type.
// The returned slice must not be modified.
func Schema(t DocType) []FieldSpec {
	if s, ok := schemas[t]; ok {
		return s
	}
	return tagsOnly
}

// Field looks up a field of the schema for t by name.
func Field(t DocType, name string) (FieldSpec, bool) {
	for _, f := range Schema(t) {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
