package datasets

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	scierrors "github.com/YuminosukeSato/textclf/pkg/errors"
)

// Columns names the fields of a local table.
type Columns struct {
	// Text holds the document body. Default "text".
	Text string
	// Label holds an integer class id or a class name. Default "label".
	Label string
	// LabelName optionally holds the class name for integer labels.
	LabelName string
}

func (c Columns) withDefaults() Columns {
	if c.Text == "" {
		c.Text = "text"
	}
	if c.Label == "" {
		c.Label = "label"
	}
	return c
}

// rawRecord is a row before labels are resolved.
type rawRecord struct {
	id        string
	text      string
	label     string // empty when missing
	labelName string
}

// LoadJSONL reads one JSON object per line. Blank lines are skipped; a
// missing or null text or label is kept as empty for DropMissing.
func LoadJSONL(r io.Reader, name string, cols Columns) (*Dataset, error) {
	cols = cols.withDefaults()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []rawRecord
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return nil, scierrors.NewDatasetError(name, fmt.Sprintf("line %d: invalid JSON", lineNo), err)
		}
		rec := rawRecord{id: strconv.Itoa(lineNo)}
		rec.text = jsonString(obj[cols.Text])
		rec.label = strings.TrimSpace(jsonString(obj[cols.Label]))
		if cols.LabelName != "" {
			rec.labelName = jsonString(obj[cols.LabelName])
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, scierrors.NewDatasetError(name, "read JSONL", err)
	}
	return resolveLabels(name, records)
}

// LoadCSV reads a CSV table whose first row is a header.
func LoadCSV(r io.Reader, name string, cols Columns) (*Dataset, error) {
	cols = cols.withDefaults()
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, scierrors.NewDatasetError(name, "read CSV header", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	textIdx, ok := index[cols.Text]
	if !ok {
		return nil, scierrors.NewDatasetError(name, fmt.Sprintf("column %q not found", cols.Text), nil)
	}
	labelIdx, ok := index[cols.Label]
	if !ok {
		return nil, scierrors.NewDatasetError(name, fmt.Sprintf("column %q not found", cols.Label), nil)
	}
	nameIdx := -1
	if cols.LabelName != "" {
		if nameIdx, ok = index[cols.LabelName]; !ok {
			return nil, scierrors.NewDatasetError(name, fmt.Sprintf("column %q not found", cols.LabelName), nil)
		}
	}

	field := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var records []rawRecord
	for row := 2; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, scierrors.NewDatasetError(name, fmt.Sprintf("row %d", row), err)
		}
		records = append(records, rawRecord{
			id:        strconv.Itoa(row),
			text:      field(fields, textIdx),
			label:     strings.TrimSpace(field(fields, labelIdx)),
			labelName: field(fields, nameIdx),
		})
	}
	return resolveLabels(name, records)
}

func jsonString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

// resolveLabels maps raw label strings to dense class ids.
//
// When every present label is a non-negative integer, the distinct integers
// are sorted numerically and numbered 0..k-1; names come from the label-name
// column, or the original integer. Otherwise labels are class names, indexed
// in sorted order.
func resolveLabels(name string, records []rawRecord) (*Dataset, error) {
	numeric := true
	seen := map[int]struct{}{}
	for _, rec := range records {
		if rec.label == "" {
			continue
		}
		id, err := strconv.Atoi(rec.label)
		if err != nil || id < 0 {
			numeric = false
			break
		}
		seen[id] = struct{}{}
	}

	ds := &Dataset{Name: name, Docs: make([]Document, len(records))}
	if numeric {
		raw := make([]int, 0, len(seen))
		for id := range seen {
			raw = append(raw, id)
		}
		sort.Ints(raw)
		dense := make(map[int]int, len(raw))
		ds.TargetNames = make([]string, len(raw))
		for i, id := range raw {
			dense[id] = i
			ds.TargetNames[i] = strconv.Itoa(id)
		}
		for i, rec := range records {
			label := UnknownLabel
			if rec.label != "" {
				id, _ := strconv.Atoi(rec.label)
				label = dense[id]
				if rec.labelName != "" {
					ds.TargetNames[label] = rec.labelName
				}
			}
			ds.Docs[i] = Document{Text: rec.text, Label: label, ID: rec.id}
		}
	} else {
		set := map[string]struct{}{}
		for _, rec := range records {
			if rec.label != "" {
				set[rec.label] = struct{}{}
			}
		}
		for l := range set {
			ds.TargetNames = append(ds.TargetNames, l)
		}
		sort.Strings(ds.TargetNames)
		ids := make(map[string]int, len(ds.TargetNames))
		for i, l := range ds.TargetNames {
			ids[l] = i
		}
		for i, rec := range records {
			label := UnknownLabel
			if rec.label != "" {
				label = ids[rec.label]
			}
			ds.Docs[i] = Document{Text: rec.text, Label: label, ID: rec.id}
		}
	}
	for i := range ds.Docs {
		if l := ds.Docs[i].Label; l >= 0 {
			ds.Docs[i].LabelName = ds.TargetNames[l]
		}
	}
	if len(ds.Docs) == 0 {
		return nil, scierrors.NewDatasetError(name, "no records", scierrors.ErrEmptyData)
	}
	return ds, nil
}
