package preprocessing

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/YuminosukeSato/textclf/core/parallel"
	"github.com/YuminosukeSato/textclf/pkg/log"
)

var (
	emailRe     = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	urlRe       = regexp.MustCompile(`(?:https?://|ftp://|(?:^|\s)www\.)\S+`)
	htmlTagRe   = regexp.MustCompile(`<[^>]{0,200}>`)
	digitRe     = regexp.MustCompile(`\d+`)
	nonLetterRe = regexp.MustCompile(`[^\p{L}\s]+`)
)

// cleanBatch is the number of documents handed to one worker at a time.
const cleanBatch = 256

// TextCleaner はニュース投稿などの生テキストを TF-IDF 向けに正規化する
//
// Clean は次の順で処理する:
//  1. 小文字化
//  2. アクセント除去 (NFD 分解後に結合文字を削除)
//  3. URL、メールアドレス、HTML タグ、数字の除去
//  4. 文字以外を空白に置換
//  5. MinTokenLen 未満のトークンを削除し、空白をまとめる
type TextCleaner struct {
	Lowercase    bool
	StripAccents bool
	RemoveEmails bool
	RemoveURLs   bool
	RemoveHTML   bool
	RemoveDigits bool
	LettersOnly  bool

	// MinTokenLen はこれより短いトークンを捨てる（rune 数）。0 なら無効
	MinTokenLen int

	// Workers は CleanAll の並列数。0 なら CPU 数
	Workers int

	logger log.Logger
}

// CleanerOption configures a TextCleaner.
type CleanerOption func(*TextCleaner)

// WithLowercase toggles lower-casing.
func WithLowercase(on bool) CleanerOption { return func(c *TextCleaner) { c.Lowercase = on } }

// WithStripAccents toggles accent removal.
func WithStripAccents(on bool) CleanerOption { return func(c *TextCleaner) { c.StripAccents = on } }

// WithRemoveEmails toggles e-mail address removal.
func WithRemoveEmails(on bool) CleanerOption { return func(c *TextCleaner) { c.RemoveEmails = on } }

// WithRemoveURLs toggles URL removal.
func WithRemoveURLs(on bool) CleanerOption { return func(c *TextCleaner) { c.RemoveURLs = on } }

// WithRemoveHTML toggles HTML tag removal.
func WithRemoveHTML(on bool) CleanerOption { return func(c *TextCleaner) { c.RemoveHTML = on } }

// WithRemoveDigits toggles digit removal.
func WithRemoveDigits(on bool) CleanerOption { return func(c *TextCleaner) { c.RemoveDigits = on } }

// WithLettersOnly toggles replacing every non-letter with a space.
func WithLettersOnly(on bool) CleanerOption { return func(c *TextCleaner) { c.LettersOnly = on } }

// WithMinTokenLen drops tokens shorter than n runes.
func WithMinTokenLen(n int) CleanerOption { return func(c *TextCleaner) { c.MinTokenLen = n } }

// WithWorkers bounds the goroutines used by CleanAll.
func WithWorkers(n int) CleanerOption { return func(c *TextCleaner) { c.Workers = n } }

// WithCleanerLogger sets the logger used by CleanAll.
func WithCleanerLogger(l log.Logger) CleanerOption { return func(c *TextCleaner) { c.logger = l } }

// NewTextCleaner は全ステップ有効、MinTokenLen=2 の TextCleaner を作成する
//
// 使用例:
//
//	cleaner := preprocessing.NewTextCleaner(preprocessing.WithMinTokenLen(3))
//	docs, err := cleaner.CleanAll(ctx, raw)
func NewTextCleaner(opts ...CleanerOption) *TextCleaner {
	c := &TextCleaner{
		Lowercase:    true,
		StripAccents: true,
		RemoveEmails: true,
		RemoveURLs:   true,
		RemoveHTML:   true,
		RemoveDigits: true,
		LettersOnly:  true,
		MinTokenLen:  2,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("preprocessing")
	}
	return c
}

// Clean は1文書を正規化する。goroutine から同時に呼び出してよい
func (c *TextCleaner) Clean(doc string) string {
	if c.Lowercase {
		doc = cases.Lower(language.Und).String(doc)
	}
	if c.StripAccents {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if s, _, err := transform.String(t, doc); err == nil {
			doc = s
		}
	}
	// URL はメールより先に消す (http://user@host/path)
	if c.RemoveURLs {
		doc = urlRe.ReplaceAllString(doc, " ")
	}
	if c.RemoveEmails {
		doc = emailRe.ReplaceAllString(doc, " ")
	}
	if c.RemoveHTML {
		doc = htmlTagRe.ReplaceAllString(doc, " ")
	}
	if c.RemoveDigits {
		doc = digitRe.ReplaceAllString(doc, " ")
	}
	if c.LettersOnly {
		doc = nonLetterRe.ReplaceAllString(doc, " ")
	}

	fields := strings.Fields(doc)
	if c.MinTokenLen > 1 {
		kept := fields[:0]
		for _, f := range fields {
			if len([]rune(f)) >= c.MinTokenLen {
				kept = append(kept, f)
			}
		}
		fields = kept
	}
	return strings.Join(fields, " ")
}

// CleanAll は docs を並列に正規化し、入力と同じ順序で返す
// ctx がキャンセルされると途中で ctx.Err() を返す
func (c *TextCleaner) CleanAll(ctx context.Context, docs []string) ([]string, error) {
	out := make([]string, len(docs))
	batches := (len(docs) + cleanBatch - 1) / cleanBatch
	err := parallel.ParallelizeWorkers(ctx, batches, c.Workers, func(b int) error {
		start := b * cleanBatch
		end := min(start+cleanBatch, len(docs))
		for i := start; i < end; i++ {
			out[i] = c.Clean(docs[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	empty := 0
	for _, d := range out {
		if d == "" {
			empty++
		}
	}
	c.logger.Debug("Documents cleaned",
		log.OperationKey, log.OperationClean,
		log.DocumentsKey, len(docs),
		log.EmptyDocsKey, empty,
	)
	return out, nil
}

// GetParams returns the cleaning switches.
func (c *TextCleaner) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"lowercase":     c.Lowercase,
		"strip_accents": c.StripAccents,
		"remove_emails": c.RemoveEmails,
		"remove_urls":   c.RemoveURLs,
		"remove_html":   c.RemoveHTML,
		"remove_digits": c.RemoveDigits,
		"letters_only":  c.LettersOnly,
		"min_token_len": c.MinTokenLen,
	}
}
