// Package relationships loads entity relations. A Loader fetches one
// relation of one entity on demand, or eager loads relations for a whole
// collection with one batched query per relation and nesting level.
package relationships

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

// DefaultMaxDepth bounds include paths such as "posts.comments.author"
const DefaultMaxDepth = 10

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the loader's logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth
func WithMaxDepth(depth int) Option {
	return func(l *Loader) {
		if depth > 0 {
			l.maxDepth = depth
		}
	}
}

// Loader handles efficient relationship loading with N+1 prevention.
// Queries run on the transaction carried by the context, if any, and on
// db otherwise.
type Loader struct {
	db       sqlexec.Executor
	logger   *zap.Logger
	maxDepth int
}

// NewLoader creates a new relationship loader
func NewLoader(db sqlexec.Executor, opts ...Option) *Loader {
	l := &Loader{
		db:       db,
		logger:   zap.NewNop(),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// include is one node of the include tree built from dotted paths.
// rel and related are filled in by resolve.
type include struct {
	name     string
	children []*include

	rel     *schema.Relation
	related *schema.EntityMeta
}

func (n *include) child(name string) *include {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	c := &include{name: name}
	n.children = append(n.children, c)
	return c
}

// parseIncludes merges dotted paths into a tree, keeping first-seen order.
// "posts" and "posts.comments" share the posts node.
func parseIncludes(paths []string) []*include {
	root := &include{}
	for _, path := range paths {
		node := root
		for _, part := range strings.Split(path, ".") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			node = node.child(part)
		}
	}
	return root.children
}

// resolve binds every node to its relation before any SQL is issued, so an
// unknown name anywhere in the tree fails the whole call up front
func (l *Loader) resolve(meta *schema.EntityMeta, nodes []*include, depth int, path string) error {
	if len(nodes) > 0 && depth > l.maxDepth {
		return fmt.Errorf("%w: %s (max %d)", ErrMaxDepthExceeded, path, l.maxDepth)
	}

	for _, n := range nodes {
		rel, ok := meta.Relation(n.name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, meta.Name, n.name)
		}
		related, err := rel.RelatedMeta()
		if err != nil {
			return fmt.Errorf("relation %s.%s: %w", meta.Name, n.name, err)
		}
		n.rel = rel
		n.related = related

		sub := n.name
		if path != "" {
			sub = path + "." + n.name
		}
		if err := l.resolve(related, n.children, depth+1, sub); err != nil {
			return err
		}
	}
	return nil
}

// Check reports whether every include path names relations declared on
// meta, without issuing any SQL
func (l *Loader) Check(meta *schema.EntityMeta, includes ...string) error {
	return l.resolve(meta, parseIncludes(includes), 1, "")
}
