package weapons

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/invopop/jsonschema"
)

// ErrUnknownWeapon is returned when a weapon id is not in the catalog.
var ErrUnknownWeapon = errors.New("unknown weapon")

// File is the on-disk catalog format.
type File struct {
	Weapons []Weapon   `json:"weapons" jsonschema:"required,minItems=1"`
	Dodge   *DodgeSpec `json:"dodge,omitempty" jsonschema:"description=Overrides the default roll"`
}

// Catalog is a validated, read-only set of weapon definitions.
// It is safe for concurrent use because nothing mutates it after load.
type Catalog struct {
	weapons map[string]Weapon
	order   []string
	dodge   DodgeSpec
}

// New validates definitions and builds a catalog.
func New(weapons []Weapon, dodge DodgeSpec) (*Catalog, error) {
	if len(weapons) == 0 {
		return nil, fmt.Errorf("catalog has no weapons")
	}
	if err := dodge.validate(); err != nil {
		return nil, fmt.Errorf("dodge: %w", err)
	}

	c := &Catalog{
		weapons: make(map[string]Weapon, len(weapons)),
		order:   make([]string, 0, len(weapons)),
		dodge:   dodge,
	}
	for _, w := range weapons {
		if err := w.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.weapons[w.ID]; dup {
			return nil, fmt.Errorf("duplicate weapon id %q", w.ID)
		}
		c.weapons[w.ID] = cloneWeapon(w)
		c.order = append(c.order, w.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultWeapons, DefaultDodge)
	if err != nil {
		// Built-in definitions are covered by tests.
		panic(fmt.Sprintf("weapons: invalid default catalog: %v", err))
	}
	return c
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	dodge := DefaultDodge
	if f.Dodge != nil {
		dodge = *f.Dodge
	}
	return New(f.Weapons, dodge)
}

// Load reads a catalog file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Get returns a weapon by id.
func (c *Catalog) Get(id string) (Weapon, bool) {
	w, ok := c.weapons[id]
	return cloneWeapon(w), ok
}

// Lookup is Get with an error for callers that propagate failures.
func (c *Catalog) Lookup(id string) (Weapon, error) {
	w, ok := c.weapons[id]
	if !ok {
		return Weapon{}, fmt.Errorf("%w: %q", ErrUnknownWeapon, id)
	}
	return cloneWeapon(w), nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.weapons[id]
	return ok
}

// All returns every weapon sorted by id.
func (c *Catalog) All() []Weapon {
	out := make([]Weapon, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, cloneWeapon(c.weapons[id]))
	}
	return out
}

// Dodge returns the roll definition.
func (c *Catalog) Dodge() DodgeSpec {
	return c.dodge
}

// Schema returns the JSON schema for catalog files.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&File{})
	schema.Title = "Weapon Catalog"
	schema.Description = "Weapon and dodge definitions loaded at server start."
	return schema
}

// JSONSchema describes HitboxKind as its string form.
func (HitboxKind) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []interface{}{"arc", "circle", "rectangle"},
	}
}

// JSONSchema describes Pattern as its string form.
func (Pattern) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []interface{}{"melee", "projectile"},
	}
}

// cloneWeapon copies pointer fields so callers cannot mutate catalog entries.
func cloneWeapon(w Weapon) Weapon {
	if w.Hitbox != nil {
		h := *w.Hitbox
		w.Hitbox = &h
	}
	if w.Projectile != nil {
		p := *w.Projectile
		w.Projectile = &p
	}
	return w
}
