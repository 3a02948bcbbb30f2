package schema

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// ToSnakeCase lowercases s and inserts an underscore before every interior
// uppercase letter: "UserProfile" -> "user_profile", "APIKey" -> "a_p_i_key".
// Every derived table, foreign key and pivot name goes through here.
func ToSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ShortName strips pointer markers and package qualifiers from a type name:
// "*blog.User" -> "User".
func ShortName(name string) string {
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndexAny(name, `./\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// NamingStrategy derives storage names for entities that do not declare them
type NamingStrategy struct {
	TablePrefix  string
	PluralTables bool
}

// TableName returns the table name for an entity type name
func (ns NamingStrategy) TableName(entity string) string {
	name := ToSnakeCase(ShortName(entity))
	if ns.PluralTables {
		name = inflection.Plural(name)
	}
	return ns.TablePrefix + name
}

// KeyName returns the conventional foreign key column referencing an entity
func (ns NamingStrategy) KeyName(entity string) string {
	return ToSnakeCase(ShortName(entity)) + "_id"
}
