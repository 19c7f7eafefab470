package schema

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/uuid"
)

// definitionSchema constrains directory files before they are decoded.
const definitionSchema = `
#Type: "string" | "text" | "number" | "integer" | "decimal" | "date" | "datetime" | "boolean" | "relation" | "json" | "file"

#Field: {
	id?:          string
	name:         string & !=""
	type:         #Type
	required:     *false | bool
	relation_id?: string
	metadata?: {
		isFilterable?:     bool
		isVisibleOnTable?: bool
		fieldOrder?:       int
		cascadeParent?:    string
		cascadeRequired?:  bool
		hints?: [string]: string
	}
}

#Directory: {
	id?:            string
	icon?:          string
	directory_type: *"module" | "company" | "system"
	fields: [...#Field]
}

directories: [string]: #Directory
`

type cueDirectory struct {
	ID     string     `json:"id"`
	Icon   string     `json:"icon"`
	Type   string     `json:"directory_type"`
	Fields []cueField `json:"fields"`
}

type cueField struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Required   bool      `json:"required"`
	RelationID string    `json:"relation_id"`
	Meta       FieldMeta `json:"metadata"`
}

// LoadCUEFile reads directory definitions from a CUE file.
func LoadCUEFile(path string) ([]*Directory, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return LoadCUE(path, src)
}

// LoadCUE compiles CUE source against the directory definition schema and
// returns the declared directories sorted by name. Directory names are the
// keys of the top-level "directories" struct; a relation_id may name a
// directory declared in the same file instead of giving its id.
func LoadCUE(filename string, src []byte) ([]*Directory, error) {
	ctx := cuecontext.New()

	base := ctx.CompileString(definitionSchema, cue.Filename("directory_schema.cue"))
	if base.Err() != nil {
		return nil, fmt.Errorf("compiling definition schema: %w", base.Err())
	}
	user := ctx.CompileBytes(src, cue.Filename(filename))
	if user.Err() != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, user.Err())
	}

	val := base.Unify(user)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	var decoded map[string]cueDirectory
	if err := val.LookupPath(cue.ParsePath("directories")).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding directories: %w", err)
	}

	names := make([]string, 0, len(decoded))
	for name := range decoded {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make(map[string]string, len(names))
	for _, name := range names {
		id := decoded[name].ID
		if id == "" {
			id = stableID(name)
		}
		ids[name] = id
	}

	dirs := make([]*Directory, 0, len(names))
	for _, name := range names {
		cd := decoded[name]
		d := &Directory{
			ID:   ids[name],
			Name: name,
			Icon: cd.Icon,
			Type: DirectoryType(cd.Type),
		}
		for _, cf := range cd.Fields {
			if id, ok := ids[cf.RelationID]; ok {
				cf.RelationID = id
			}
			if cf.ID == "" {
				cf.ID = stableID(name + "." + cf.Name)
			}
			d.Fields = append(d.Fields, &Field{
				ID:         cf.ID,
				Name:       cf.Name,
				Type:       SemanticType(cf.Type),
				Required:   cf.Required,
				RelationID: cf.RelationID,
				Meta:       cf.Meta,
			})
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// stableID derives an id from a name so that records stored against
// file-defined fields survive restarts.
func stableID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("dirconsole:"+name)).String()
}
