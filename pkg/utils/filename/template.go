package filename

import "strings"

// Vars holds the placeholder values recognized in filename templates.
// Empty fields substitute to the empty string.
type Vars struct {
	ID    string // {id} job or video identifier
	FN    string // {fn} sanitized display name
	Ext   string // {ext} extension without leading dot
	Index string // {index} 2-digit sequence number
}

// Expand substitutes {id}, {fn}, {ext} and {index} placeholders in a
// configured filename template. Unknown placeholders are left untouched.
func Expand(template string, vars Vars) string {
	r := strings.NewReplacer(
		"{id}", vars.ID,
		"{fn}", vars.FN,
		"{ext}", vars.Ext,
		"{index}", vars.Index,
	)
	return r.Replace(template)
}
