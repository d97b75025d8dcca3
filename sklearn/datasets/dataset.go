// Package datasets loads labelled text corpora into a common Dataset shape.
//
// The 20 Newsgroups "bydate" archive is fetched by name and cached on disk;
// local JSON Lines and CSV tables with a text and a label column are loaded
// from files. Records with a missing text or label are kept with empty
// values so DropMissing can report how many it removed.
package datasets

import (
	"strings"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

// UnknownLabel marks a document whose label field was missing or null.
const UnknownLabel = -1

// Document is one labelled text.
type Document struct {
	Text      string
	Label     int
	LabelName string

	// ID is the source identifier (archive path or line number).
	ID string
}

// Dataset is an ordered collection of documents plus the label vocabulary.
// Label i names TargetNames[i].
type Dataset struct {
	Name        string
	Docs        []Document
	TargetNames []string
}

// Len returns the number of documents.
func (d *Dataset) Len() int { return len(d.Docs) }

// NClasses returns the number of target names.
func (d *Dataset) NClasses() int { return len(d.TargetNames) }

// Texts returns the document texts in order.
func (d *Dataset) Texts() []string {
	out := make([]string, len(d.Docs))
	for i, doc := range d.Docs {
		out[i] = doc.Text
	}
	return out
}

// Labels returns the document labels in order.
func (d *Dataset) Labels() []int {
	out := make([]int, len(d.Docs))
	for i, doc := range d.Docs {
		out[i] = doc.Label
	}
	return out
}

// ClassCounts returns the number of documents per label, indexed by label.
// Unknown labels are not counted.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, len(d.TargetNames))
	for _, doc := range d.Docs {
		if doc.Label >= 0 && doc.Label < len(counts) {
			counts[doc.Label]++
		}
	}
	return counts
}

// Subset returns a new Dataset holding the documents at indices, in that order.
// The target names are shared with the receiver.
func (d *Dataset) Subset(indices []int) (*Dataset, error) {
	docs := make([]Document, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(d.Docs) {
			return nil, scierrors.NewValueError("Dataset.Subset", "index out of range")
		}
		docs[i] = d.Docs[idx]
	}
	return &Dataset{Name: d.Name, Docs: docs, TargetNames: d.TargetNames}, nil
}

// Filter returns a new Dataset with the documents for which keep returns true.
func (d *Dataset) Filter(keep func(Document) bool) *Dataset {
	docs := make([]Document, 0, len(d.Docs))
	for _, doc := range d.Docs {
		if keep(doc) {
			docs = append(docs, doc)
		}
	}
	return &Dataset{Name: d.Name, Docs: docs, TargetNames: d.TargetNames}
}

// DropMissing removes documents whose text is blank or whose label is
// unknown, and returns the filtered dataset with the number removed.
func DropMissing(d *Dataset) (*Dataset, int) {
	out := d.Filter(func(doc Document) bool {
		if strings.TrimSpace(doc.Text) == "" {
			return false
		}
		return doc.Label >= 0 && doc.Label < len(d.TargetNames)
	})
	return out, d.Len() - out.Len()
}
