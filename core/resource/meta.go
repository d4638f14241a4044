package resource

import (
	"github.com/artpar/resrun/core/value"
)

// Definition attribute keys.
const (
	AttrName           = "@name"
	AttrAliases        = "@aliases"
	AttrVersion        = "@version"
	AttrDescription    = "@description"
	AttrComment        = "@comment"
	AttrAuthors        = "@authors"
	AttrRepository     = "@repository"
	AttrLicense        = "@license"
	AttrExamples       = "@examples"
	AttrRuntime        = "@runtime"
	AttrImplementation = "@implementation"
	AttrHidden         = "@hidden"
	AttrType           = "@type"
	AttrImport         = "@import"
	AttrExport         = "@export"
	AttrPosition       = "@position"
	AttrIsVariadic     = "@isVariadic"
	AttrIsSubInput     = "@isSubInput"
	AttrDefault        = "@default"
	AttrValue          = "@value"
	AttrInput          = "@input"
	AttrBefore         = "@before"
	AttrRun            = "@run"
	AttrAfter          = "@after"
	AttrListen         = "@listen"
	AttrUnlisten       = "@unlisten"
)

// attrOrder is the order attributes are serialized in.
var attrOrder = []string{
	AttrName, AttrAliases, AttrVersion, AttrDescription, AttrComment,
	AttrAuthors, AttrRepository, AttrLicense, AttrExamples, AttrRuntime,
	AttrImplementation, AttrHidden, AttrType, AttrImport, AttrExport,
	AttrPosition, AttrIsVariadic, AttrIsSubInput, AttrDefault, AttrValue,
	AttrInput, AttrBefore, AttrRun, AttrAfter, AttrListen, AttrUnlisten,
}

func isAttr(key string) bool {
	for _, a := range attrOrder {
		if a == key {
			return true
		}
	}
	return false
}

// Meta holds the identity attributes of a resource.
type Meta struct {
	Name        string
	Aliases     []string
	Version     string
	Description string
	Comment     string
	Authors     []string
	Repository  string
	License     string
	Examples    []any

	// Runtime is a "name@range" compatibility requirement.
	Runtime string

	// Implementation names a native function bound as the method body.
	Implementation string

	Hidden bool
}

func (m Meta) clone() Meta {
	out := m
	out.Aliases = append([]string(nil), m.Aliases...)
	out.Authors = append([]string(nil), m.Authors...)
	if m.Examples != nil {
		out.Examples = value.Plain(m.Examples).([]any)
	}
	return out
}

// put writes the populated attributes into out.
func (m Meta) put(out *value.OrderedMap) {
	if m.Name != "" {
		out.Set(AttrName, m.Name)
	}
	if len(m.Aliases) > 0 {
		out.Set(AttrAliases, stringList(m.Aliases))
	}
	if m.Version != "" {
		out.Set(AttrVersion, m.Version)
	}
	if m.Description != "" {
		out.Set(AttrDescription, m.Description)
	}
	if m.Comment != "" {
		out.Set(AttrComment, m.Comment)
	}
	if len(m.Authors) > 0 {
		out.Set(AttrAuthors, stringList(m.Authors))
	}
	if m.Repository != "" {
		out.Set(AttrRepository, m.Repository)
	}
	if m.License != "" {
		out.Set(AttrLicense, m.License)
	}
	if len(m.Examples) > 0 {
		out.Set(AttrExamples, value.Plain(m.Examples))
	}
	if m.Runtime != "" {
		out.Set(AttrRuntime, m.Runtime)
	}
	if m.Implementation != "" {
		out.Set(AttrImplementation, m.Implementation)
	}
	if m.Hidden {
		out.Set(AttrHidden, true)
	}
}

func stringList(s []string) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}
