package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

const paragraphSep = "\n\n"

// Chunk is one slice of a document before it becomes a passage.
type Chunk struct {
	Text string
	// Section is the nearest preceding markdown heading, if any.
	Section string
}

// ChunkText splits text into chunks of at most size characters. Adjacent
// chunks share up to overlap characters of whole paragraphs. Markdown is
// first split by headings so chunks never straddle sections.
func ChunkText(text string, markdown bool, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []Chunk
	for _, sec := range sections(text, markdown) {
		for _, c := range pack(pieces(sec.body, size), size, overlap) {
			out = append(out, Chunk{Text: c, Section: sec.title})
		}
	}
	return out
}

type section struct {
	title string
	body  string
}

// sections splits markdown by #, ## and ### headings. The heading line
// stays in its section's body.
func sections(text string, markdown bool) []section {
	if !markdown {
		return []section{{body: text}}
	}
	var (
		out     []section
		current []string
		title   string
	)
	flush := func() {
		if body := strings.TrimSpace(strings.Join(current, "\n")); body != "" {
			out = append(out, section{title: title, body: body})
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if h, ok := heading(line); ok {
			flush()
			title = h
		}
		current = append(current, line)
	}
	flush()
	return out
}

func heading(line string) (string, bool) {
	for _, p := range []string{"### ", "## ", "# "} {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):]), true
		}
	}
	return "", false
}

// pieces returns the paragraphs of text, breaking any longer than size at
// word boundaries.
func pieces(text string, size int) []string {
	var out []string
	for _, para := range strings.Split(text, paragraphSep) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runes(para) <= size {
			out = append(out, para)
			continue
		}
		out = append(out, words(para, size)...)
	}
	return out
}

func words(para string, size int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, w := range strings.Fields(para) {
		for runes(w) > size {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			head, tail := cutRunes(w, size)
			out = append(out, head)
			w = tail
		}
		if cur.Len() > 0 && runes(cur.String())+1+runes(w) > size {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// pack merges pieces into chunks no longer than size, carrying trailing
// pieces worth at most overlap characters into the next chunk.
func pack(ps []string, size, overlap int) []string {
	var (
		out []string
		cur []string
	)
	for _, p := range ps {
		if len(cur) > 0 && joinedLen(cur)+len(paragraphSep)+runes(p) > size {
			out = append(out, strings.Join(cur, paragraphSep))
			for len(cur) > 0 && (joinedLen(cur) > overlap || joinedLen(cur)+len(paragraphSep)+runes(p) > size) {
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, paragraphSep))
	}
	return out
}

func joinedLen(ps []string) int {
	n := 0
	for i, p := range ps {
		if i > 0 {
			n += len(paragraphSep)
		}
		n += runes(p)
	}
	return n
}

func runes(s string) int { return utf8.RuneCountInString(s) }

func cutRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
