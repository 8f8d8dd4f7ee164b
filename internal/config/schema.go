// Package config holds the versioned task-config schemas (sign and
// monitor), the migration framework that loads old on-disk shapes, and the
// application-level configuration.
package config

import (
	"encoding/json"
	"fmt"
)

// Document is one version of a schema family's shape. A document is
// constructed only by validating raw JSON against the shape and is treated
// as immutable afterwards.
type Document interface {
	Validate() error
}

// Version ties a schema version tag to its decode target and, for prior
// versions, the pure transform producing the next registered shape.
type Version struct {
	Tag     int
	New     func() Document
	Upgrade func(Document) Document
}

// Family is the immutable registration table for one schema family: the
// current version plus all prior versions in declared order, oldest first.
// Tables are package-level values built once; nothing mutates them after
// process start.
type Family struct {
	Name    string
	Current Version
	Olds    []Version
}

// SchemaMismatchError reports that a raw record validated against no
// registered version of a family.
type SchemaMismatchError struct {
	Family    string
	Attempted []int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("config %q matches no known schema version (tried %v)", e.Family, e.Attempted)
}

// Load decodes a raw JSON record into the family's current shape. The
// current version is tried first; on failure each registered prior version
// is tried in declared order, and the first one that validates is upgraded
// one version at a time to current. The returned flag reports whether an
// upgrade happened. A record valid under several versions resolves to the
// first match, current version first.
func (f Family) Load(raw []byte) (Document, bool, error) {
	attempted := []int{f.Current.Tag}
	if doc, ok := decode(f.Current, raw); ok {
		return doc, false, nil
	}
	for i, v := range f.Olds {
		attempted = append(attempted, v.Tag)
		doc, ok := decode(v, raw)
		if !ok {
			continue
		}
		for j := i; j < len(f.Olds); j++ {
			doc = f.Olds[j].Upgrade(doc)
		}
		return doc, true, nil
	}
	return nil, false, &SchemaMismatchError{Family: f.Name, Attempted: attempted}
}

func decode(v Version, raw []byte) (Document, bool) {
	doc := v.New()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, false
	}
	if err := doc.Validate(); err != nil {
		return nil, false
	}
	return doc, true
}
