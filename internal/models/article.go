package models

import (
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// IndexFilename is the name of the JSON index kept next to the articles
const IndexFilename = "articles-index.json"

const (
	filenameLayout = "200601021504"
	dateSortLayout = "2006-01-02"
	// lastUpdated uses millisecond precision in UTC
	lastUpdatedLayout = "2006-01-02T15:04:05.000Z"
)

// ArticleSubmission is the payload posted by the editing UI
type ArticleSubmission struct {
	Title      string   `json:"title" validate:"notblank"`
	Subtitle   string   `json:"subtitle"`
	Author     string   `json:"author"`
	Date       string   `json:"date"`
	Content    string   `json:"content" validate:"notblank"`
	References []string `json:"references"`
}

// FilteredReferences returns the references that are not blank, in order.
// The surviving entries are returned as submitted, without trimming.
func (s ArticleSubmission) FilteredReferences() []string {
	refs := make([]string, 0, len(s.References))
	for _, ref := range s.References {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// ArticleRecord is one entry of the article index
type ArticleRecord struct {
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	DateSort string `json:"dateSort"`
}

// ArticleIndex is the persisted list of generated articles
type ArticleIndex struct {
	Articles    []ArticleRecord `json:"articles"`
	LastUpdated string          `json:"lastUpdated"`
}

// NewArticleIndex returns an empty index
func NewArticleIndex() *ArticleIndex {
	return &ArticleIndex{Articles: []ArticleRecord{}}
}

// Upsert replaces the record with the same filename, or appends it.
// It reports whether an existing record was replaced.
func (idx *ArticleIndex) Upsert(rec ArticleRecord) bool {
	for i := range idx.Articles {
		if idx.Articles[i].Filename == rec.Filename {
			idx.Articles[i] = rec
			return true
		}
	}
	idx.Articles = append(idx.Articles, rec)
	return false
}

// Sort orders the records newest first by DateSort. Records with equal
// DateSort keep their relative order.
func (idx *ArticleIndex) Sort() {
	sort.SliceStable(idx.Articles, func(i, j int) bool {
		return idx.Articles[i].DateSort > idx.Articles[j].DateSort
	})
}

// Touch stamps LastUpdated with t
func (idx *ArticleIndex) Touch(t time.Time) {
	idx.LastUpdated = FormatTimestamp(t)
}

// FormatTimestamp renders t the way lastUpdated is stored
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(lastUpdatedLayout)
}

// ArticleFilename derives the minute-granularity file name for an article
// generated at t, e.g. 202501021504.html.
func ArticleFilename(t time.Time) string {
	return t.Format(filenameLayout) + ".html"
}

// DateSort turns the author's display date into a YYYY-MM-DD sort key.
// Dates that cannot be parsed fall back to the calendar date of now.
func DateSort(date string, now time.Time) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return now.Format(dateSortLayout)
	}
	t, err := dateparse.ParseLocal(date)
	if err != nil {
		return now.Format(dateSortLayout)
	}
	return t.Format(dateSortLayout)
}

// NewArticleRecord builds the index entry for a submission
func NewArticleRecord(filename string, sub ArticleSubmission, now time.Time) ArticleRecord {
	return ArticleRecord{
		Filename: filename,
		Title:    sub.Title,
		Date:     sub.Date,
		DateSort: DateSort(sub.Date, now),
	}
}
