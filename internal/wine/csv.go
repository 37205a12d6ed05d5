package wine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoURLColumn is returned when a links CSV has neither a "URL" nor a "url" column.
var ErrNoURLColumn = errors.New("links csv has no URL column")

// EncodeLinks renders links as CSV bytes.
func EncodeLinks(links []Link) ([]byte, error) {
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, []string{l.Name, l.URL})
	}
	return encode(LinkColumns, rows)
}

// EncodeReviews renders reviews as CSV bytes.
func EncodeReviews(reviews []Review) ([]byte, error) {
	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, r.row())
	}
	return encode(ReviewColumns, rows)
}

// WriteLinksCSV writes links to path, creating parent directories.
func WriteLinksCSV(path string, links []Link) error {
	data, err := EncodeLinks(links)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// WriteReviewsCSV writes reviews to path, creating parent directories.
func WriteReviewsCSV(path string, reviews []Review) error {
	data, err := EncodeReviews(reviews)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// ReadLinksCSV loads links from a CSV with a "URL" (or "url") column and an
// optional "Wine Name" column. Rows keep their file order, empty URLs included.
func ReadLinksCSV(path string) ([]Link, error) {
	header, rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	urlIdx := indexOf(header, "URL")
	if urlIdx < 0 {
		urlIdx = indexOf(header, "url")
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoURLColumn)
	}
	nameIdx := indexOf(header, "Wine Name")
	links := make([]Link, 0, len(rows))
	for _, row := range rows {
		links = append(links, Link{
			Name: field(row, nameIdx),
			URL:  strings.TrimSpace(field(row, urlIdx)),
		})
	}
	return links, nil
}

// ReadReviewsCSV loads a details CSV previously written by WriteReviewsCSV.
// Missing columns are left empty.
func ReadReviewsCSV(path string) ([]Review, error) {
	header, rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(ReviewColumns))
	for i, col := range ReviewColumns {
		idx[i] = indexOf(header, col)
	}
	reviews := make([]Review, 0, len(rows))
	for _, row := range rows {
		get := func(i int) string { return field(row, idx[i]) }
		reviews = append(reviews, Review{
			Name:     get(0),
			Region1:  get(1),
			Region2:  get(2),
			Region3:  get(3),
			Country:  get(4),
			Score:    get(5),
			Price:    get(6),
			Winery:   get(7),
			Variety:  get(8),
			WineType: get(9),
			URL:      get(10),
			Error:    get(11),
		})
	}
	return reviews, nil
}

func encode(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

func readAll(path string) ([]string, [][]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is an operator-supplied CSV.
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header %s: %w", path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	return header, rows, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
